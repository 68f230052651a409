// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package replicanet carries blob protocol envelopes between the router
// and datanode replicas over grpc.
package replicanet

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/protocol"
)

var (
	// Error is the default error class for the replicanet package.
	Error = errs.Class("replicanet error")

	mon = monkit.Package()
)

// RequestInfo pairs a request envelope with the replica it targets.
type RequestInfo struct {
	Replica *clustermap.Replica
	Request *protocol.Request
}

// ResponseInfo is the outcome of one request. Exactly one of Response
// and Err is set; transport failures, unreachable nodes and per-call
// deadline expiry all surface through Err.
type ResponseInfo struct {
	Request  RequestInfo
	Response *protocol.Response
	Err      error
}

// Client delivers requests to replicas and hands back their responses.
//
// Send queues every request for delivery and returns without waiting
// for network I/O. Poll returns the responses accumulated so far,
// waiting up to maxWait for the first one to arrive. Close cancels
// outstanding calls and releases all connections.
type Client interface {
	Send(ctx context.Context, requests ...RequestInfo)
	Poll(maxWait time.Duration) []ResponseInfo
	Close() error
}
