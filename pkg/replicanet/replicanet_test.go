// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package replicanet_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"ambry.io/ambry/internal/testcontext"
	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/protocol"
	"ambry.io/ambry/pkg/replicanet"
)

// echoServer answers every envelope with the configured code.
type echoServer struct {
	code protocol.ServerErrorCode
}

func (s *echoServer) Process(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	resp := protocol.NewResponse(req, s.code)
	if req.Header.Type == protocol.TypePut {
		resp.BlobID = req.Put.BlobID
	}
	return resp, nil
}

func startReplica(t *testing.T, ctx *testcontext.Context, srv replicanet.ReplicaServer) (*grpc.Server, string) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer()
	replicanet.RegisterReplicaServer(grpcServer, srv)
	ctx.Go(func() error {
		return grpcServer.Serve(lis)
	})
	return grpcServer, lis.Addr().String()
}

func mapWithNode(t *testing.T, addr string) *clustermap.StaticMap {
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cmap, err := clustermap.New(clustermap.Layout{
		Datacenter:   "dc1",
		DatacenterID: 1,
		Nodes: []clustermap.NodeSpec{
			{Hostname: host, Port: port, Datacenter: "dc1"},
		},
		Partitions: []clustermap.PartitionSpec{
			{ID: 0, Writable: true, Replicas: []string{addr}},
		},
	})
	require.NoError(t, err)
	return cmap
}

func pollOne(t *testing.T, client replicanet.Client) replicanet.ResponseInfo {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if responses := client.Poll(100 * time.Millisecond); len(responses) > 0 {
			require.Len(t, responses, 1)
			return responses[0]
		}
	}
	t.Fatal("no response arrived in time")
	return replicanet.ResponseInfo{}
}

func TestSendPollRoundTrip(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	grpcServer, addr := startReplica(t, ctx, &echoServer{code: protocol.NoError})
	defer grpcServer.Stop()

	cmap := mapWithNode(t, addr)
	replica := cmap.WritablePartitions()[0].Replicas()[0]

	dialer := replicanet.NewDialer(zaptest.NewLogger(t), replicanet.Config{})
	defer ctx.Check(dialer.Close)

	req := protocol.NewDeleteRequest(42, "test-host", &protocol.DeleteRequest{
		BlobID:       "some-blob",
		DeletionTime: time.Now().UnixNano() / int64(time.Millisecond),
	})
	dialer.Send(ctx, replicanet.RequestInfo{Replica: replica, Request: req})

	info := pollOne(t, dialer)
	require.NoError(t, info.Err)
	require.NotNil(t, info.Response)
	assert.Equal(t, protocol.NoError, info.Response.Error)
	assert.Equal(t, int32(42), info.Response.Header.CorrelationID)
	assert.Equal(t, protocol.TypeDelete, info.Response.Header.Type)
	assert.Equal(t, replica, info.Request.Replica)
}

func TestServerErrorCodePassThrough(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	grpcServer, addr := startReplica(t, ctx, &echoServer{code: protocol.BlobNotFound})
	defer grpcServer.Stop()

	cmap := mapWithNode(t, addr)
	replica := cmap.WritablePartitions()[0].Replicas()[0]

	dialer := replicanet.NewDialer(zaptest.NewLogger(t), replicanet.Config{})
	defer ctx.Check(dialer.Close)

	req := protocol.NewGetRequest(7, "test-host", &protocol.GetRequest{
		BlobID: "missing-blob",
		Flags:  protocol.GetBlobInfo,
	})
	dialer.Send(ctx, replicanet.RequestInfo{Replica: replica, Request: req})

	info := pollOne(t, dialer)
	require.NoError(t, info.Err)
	require.NotNil(t, info.Response)
	assert.Equal(t, protocol.BlobNotFound, info.Response.Error)
}

func TestTransportFailureSurfacesAsErr(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	// Reserve a port and close the listener so nothing answers there.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	cmap := mapWithNode(t, addr)
	replica := cmap.WritablePartitions()[0].Replicas()[0]

	dialer := replicanet.NewDialer(zaptest.NewLogger(t), replicanet.Config{
		RequestTimeout: time.Second,
	})
	defer ctx.Check(dialer.Close)

	req := protocol.NewDeleteRequest(1, "test-host", &protocol.DeleteRequest{BlobID: "blob"})
	dialer.Send(ctx, replicanet.RequestInfo{Replica: replica, Request: req})

	info := pollOne(t, dialer)
	require.Error(t, info.Err)
	assert.Nil(t, info.Response)
	assert.Equal(t, int32(1), info.Request.Request.Header.CorrelationID)
}

func TestPollTimesOutEmpty(t *testing.T) {
	dialer := replicanet.NewDialer(zaptest.NewLogger(t), replicanet.Config{})
	defer func() { _ = dialer.Close() }()

	start := time.Now()
	responses := dialer.Poll(50 * time.Millisecond)
	assert.Empty(t, responses)
	assert.True(t, time.Since(start) >= 50*time.Millisecond)
}

func TestCloseUnblocksPoll(t *testing.T) {
	dialer := replicanet.NewDialer(zaptest.NewLogger(t), replicanet.Config{})

	done := make(chan []replicanet.ResponseInfo, 1)
	go func() {
		done <- dialer.Poll(time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, dialer.Close())

	select {
	case responses := <-done:
		assert.Empty(t, responses)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not return after close")
	}
}
