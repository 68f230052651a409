// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package replicanet

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/protocol"
)

const responseBuffer = 1024

// Config holds dialer specific configuration.
type Config struct {
	// RequestTimeout is the network deadline for a single call,
	// including the lazy dial on first contact with a datanode.
	RequestTimeout time.Duration
}

// Dialer is the grpc implementation of Client. It keeps one client
// connection per datanode, dialed on first use, and funnels every call
// outcome into an internal channel drained by Poll.
type Dialer struct {
	log *zap.Logger
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	responses chan ResponseInfo
	pending   sync.WaitGroup
}

// NewDialer creates a Dialer.
func NewDialer(log *zap.Logger, cfg Config) *Dialer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dialer{
		log:       log,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[string]*grpc.ClientConn),
		responses: make(chan ResponseInfo, responseBuffer),
	}
}

// Send queues the requests for delivery. It spawns the network work and
// returns immediately; outcomes surface later through Poll.
func (d *Dialer) Send(ctx context.Context, requests ...RequestInfo) {
	for _, ri := range requests {
		d.pending.Add(1)
		go d.process(ctx, ri)
	}
}

func (d *Dialer) process(ctx context.Context, ri RequestInfo) {
	defer d.pending.Done()

	resp := new(protocol.Response)
	err := d.call(ctx, ri, resp)

	info := ResponseInfo{Request: ri}
	if err != nil {
		info.Err = Error.Wrap(err)
	} else {
		info.Response = resp
	}

	select {
	case d.responses <- info:
	case <-d.ctx.Done():
		mon.Meter("dropped_responses").Mark(1)
		d.log.Debug("response dropped after close",
			zap.Stringer("replica", ri.Replica),
			zap.Int32("correlation id", ri.Request.Header.CorrelationID))
	}
}

func (d *Dialer) call(ctx context.Context, ri RequestInfo, resp *protocol.Response) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := d.conn(ctx, ri.Replica.Node())
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()
	go func() {
		select {
		case <-d.ctx.Done():
			cancel()
		case <-callCtx.Done():
		}
	}()

	return conn.Invoke(callCtx, ProcessMethod, ri.Request, resp)
}

// conn returns the connection to node, dialing it on first use.
func (d *Dialer) conn(ctx context.Context, node *clustermap.DataNode) (*grpc.ClientConn, error) {
	addr := node.Addr()

	d.mu.Lock()
	conn, ok := d.conns[addr]
	d.mu.Unlock()
	if ok {
		return conn, nil
	}

	if err := d.ctx.Err(); err != nil {
		return nil, Error.New("dialer closed")
	}

	fresh, err := d.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if existing, ok := d.conns[addr]; ok {
		d.mu.Unlock()
		_ = fresh.Close()
		return existing, nil
	}
	d.conns[addr] = fresh
	d.mu.Unlock()
	return fresh, nil
}

func (d *Dialer) dial(ctx context.Context, addr string) (conn *grpc.ClientConn, err error) {
	defer mon.Task()(&ctx)(&err)

	timedCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	conn, err = grpc.DialContext(timedCtx, addr,
		grpc.WithInsecure(),
		grpc.WithBlock(),
		grpc.FailOnNonTempDialError(true),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err == context.Canceled {
		return nil, err
	}
	return conn, Error.Wrap(err)
}

// Poll returns the responses accumulated so far, waiting up to maxWait
// for the first arrival. After Close it returns whatever is still
// buffered without waiting.
func (d *Dialer) Poll(maxWait time.Duration) []ResponseInfo {
	var batch []ResponseInfo

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case info := <-d.responses:
		batch = append(batch, info)
	case <-timer.C:
	case <-d.ctx.Done():
	}

	for {
		select {
		case info := <-d.responses:
			batch = append(batch, info)
		default:
			return batch
		}
	}
}

// Close cancels outstanding calls and closes every connection.
func (d *Dialer) Close() error {
	d.cancel()

	d.mu.Lock()
	conns := d.conns
	d.conns = make(map[string]*grpc.ClientConn)
	d.mu.Unlock()

	var errlist errs.Group
	for _, conn := range conns {
		errlist.Add(conn.Close())
	}
	d.pending.Wait()
	return Error.Wrap(errlist.Err())
}
