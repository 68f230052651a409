// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package router performs replicated blob operations against the
// cluster. Every operation fans requests out across the replicas of
// one partition, bounded by a parallelism window, and resolves the
// per-replica outcomes into a single result once a success quorum is
// met or becomes unreachable.
package router

import (
	"context"
	"io"
	"io/ioutil"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/protocol"
	"ambry.io/ambry/pkg/ranger"
	"ambry.io/ambry/pkg/replicanet"
	"ambry.io/ambry/pkg/rest"
)

var (
	// Error is the default error class for the router package.
	Error = errs.Class("router error")

	mon = monkit.Package()
)

// PutCallback receives the minted blob id once a put resolves.
type PutCallback func(blobID string, err error)

// GetCallback receives the outcome of a get.
type GetCallback func(result *GetBlobResult, err error)

// DeleteCallback receives the outcome of a delete.
type DeleteCallback func(err error)

// GetBlobType selects which blob sections a get fetches.
type GetBlobType int

const (
	// GetData fetches the blob bytes.
	GetData GetBlobType = iota
	// GetBlobInfo fetches properties and user metadata.
	GetBlobInfo
	// GetAll fetches properties, user metadata and the blob bytes.
	GetAll
)

// GetBlobOptions qualifies a get operation.
type GetBlobOptions struct {
	Type   GetBlobType
	Option rest.GetOption
	Range  *rest.Range
}

// BlobInfo is the metadata section of a blob.
type BlobInfo struct {
	Properties   blob.Properties
	UserMetadata []byte
}

// GetBlobResult is a successful get. Body is set for GetData and
// GetAll; when a range was requested the body is already windowed to
// it.
type GetBlobResult struct {
	Info BlobInfo
	Body ranger.Ranger
}

// Router performs replicated blob operations. All operations are
// asynchronous and deliver their outcome through the callback exactly
// once, possibly on the submitting goroutine for immediate failures.
type Router interface {
	PutBlob(ctx context.Context, props *blob.Properties, userMetadata []byte, body io.Reader, cb PutCallback)
	GetBlob(ctx context.Context, blobID string, opts GetBlobOptions, cb GetCallback)
	DeleteBlob(ctx context.Context, blobID string, serviceID string, cb DeleteCallback)
	Close() error
}

// OperationConfig sizes the replica fan-out of one operation type.
type OperationConfig struct {
	Parallelism   int
	SuccessTarget int
}

// Config holds router specific configuration.
type Config struct {
	// Hostname identifies this router as the client id on the wire.
	Hostname string

	Delete OperationConfig
	Get    OperationConfig
	Put    OperationConfig

	// RequestTimeout bounds a single replica request. Expiry frees the
	// window slot; the operation keeps going on other replicas.
	RequestTimeout time.Duration
	// OperationTimeout bounds a whole operation.
	OperationTimeout time.Duration
	// PollInterval is how long the driver waits on the transport per
	// tick.
	PollInterval time.Duration
	// MaxBlobSize caps accepted put payloads.
	MaxBlobSize int64
}

func (cfg Config) withDefaults() Config {
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	if cfg.Delete.Parallelism <= 0 {
		cfg.Delete.Parallelism = 3
	}
	if cfg.Delete.SuccessTarget <= 0 {
		cfg.Delete.SuccessTarget = 2
	}
	if cfg.Get.Parallelism <= 0 {
		cfg.Get.Parallelism = 2
	}
	if cfg.Get.SuccessTarget <= 0 {
		cfg.Get.SuccessTarget = 1
	}
	if cfg.Put.Parallelism <= 0 {
		cfg.Put.Parallelism = 3
	}
	if cfg.Put.SuccessTarget <= 0 {
		cfg.Put.SuccessTarget = 2
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.MaxBlobSize <= 0 {
		cfg.MaxBlobSize = 4 << 20
	}
	return cfg
}

// blobRouter runs a single driver goroutine that polls the transport,
// feeds responses back to their operations and enforces deadlines. The
// registry maps every in-flight correlation id to its operation;
// entries are inserted at dispatch and removed at the terminal
// transition or on arrival of the response, whichever comes first.
type blobRouter struct {
	log       *zap.Logger
	cfg       Config
	cmap      clustermap.Map
	transport replicanet.Client
	clock     clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	correlation int32

	mu       sync.Mutex
	closed   bool
	registry map[int32]*operation
	live     map[*operation]struct{}

	done       chan struct{}
	driverDone chan struct{}
}

// New creates a router over the given cluster map and transport and
// starts its driver loop. A nil clk selects the wall clock.
func New(log *zap.Logger, cfg Config, cmap clustermap.Map, transport replicanet.Client, clk clock.Clock) Router {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &blobRouter{
		log:        log,
		cfg:        cfg.withDefaults(),
		cmap:       cmap,
		transport:  transport,
		clock:      clk,
		ctx:        ctx,
		cancel:     cancel,
		registry:   make(map[int32]*operation),
		live:       make(map[*operation]struct{}),
		done:       make(chan struct{}),
		driverDone: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *blobRouter) nextCorrelation() int32 {
	return atomic.AddInt32(&r.correlation, 1)
}

// DeleteBlob marks the blob deleted on a quorum of its replicas.
// serviceID names the caller for the datanode trace and may be empty.
func (r *blobRouter) DeleteBlob(ctx context.Context, blobID string, serviceID string, cb DeleteCallback) {
	mon.Meter("delete_blob").Mark(1)

	partition, err := r.resolvePartition(blobID)
	if err != nil {
		cb(err)
		return
	}

	deletionTime := r.clock.Now().UnixNano() / int64(time.Millisecond)
	op := &operation{
		reqType: protocol.TypeDelete,
		blobID:  blobID,
		build: func(correlationID int32) *protocol.Request {
			return protocol.NewDeleteRequest(correlationID, r.cfg.Hostname, &protocol.DeleteRequest{
				BlobID:       blobID,
				DeletionTime: deletionTime,
			})
		},
		terminal: map[protocol.ServerErrorCode]Code{
			protocol.BlobDeleted: BlobDeleted,
		},
		complete: func(err error) { cb(err) },
	}
	if serviceID != "" {
		r.log.Debug("delete submitted",
			zap.String("blob id", blobID),
			zap.String("service id", serviceID))
	}
	r.start(op, partition, r.cfg.Delete)
}

// GetBlob fetches the sections of the blob selected by opts from the
// first replica able to serve them.
func (r *blobRouter) GetBlob(ctx context.Context, blobID string, opts GetBlobOptions, cb GetCallback) {
	mon.Meter("get_blob").Mark(1)

	partition, err := r.resolvePartition(blobID)
	if err != nil {
		cb(nil, err)
		return
	}

	var flags protocol.GetFlags
	switch opts.Type {
	case GetBlobInfo:
		flags = protocol.GetBlobInfo
	case GetAll:
		flags = protocol.GetAll
	default:
		flags = protocol.FlagBlob
	}

	result := new(GetBlobResult)
	captured := false
	op := &operation{
		reqType: protocol.TypeGet,
		blobID:  blobID,
		build: func(correlationID int32) *protocol.Request {
			return protocol.NewGetRequest(correlationID, r.cfg.Hostname, &protocol.GetRequest{
				BlobID:  blobID,
				Flags:   flags,
				Options: opts.Option,
			})
		},
		terminal: map[protocol.ServerErrorCode]Code{
			protocol.BlobDeleted:          BlobDeleted,
			protocol.BlobExpired:          BlobExpired,
			protocol.AuthorizationFailure: BlobAuthorizationFailure,
		},
		onSuccess: func(resp *protocol.Response) {
			if captured || resp.Get == nil {
				return
			}
			captured = true
			if resp.Get.Properties != nil {
				result.Info.Properties = *resp.Get.Properties
			}
			result.Info.UserMetadata = resp.Get.UserMetadata
			if resp.Get.Blob != nil {
				data := resp.Get.Blob
				if opts.Range != nil {
					if offset, length, err := opts.Range.Resolve(int64(len(data))); err == nil {
						data = data[offset : offset+length]
					}
				}
				result.Body = ranger.ByteRanger(data)
			}
		},
		complete: func(err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(result, nil)
		},
	}
	r.start(op, partition, r.cfg.Get)
}

// PutBlob stores the body on a random writable partition and resolves
// with the minted blob id once a durability quorum has acknowledged.
func (r *blobRouter) PutBlob(ctx context.Context, props *blob.Properties, userMetadata []byte, body io.Reader, cb PutCallback) {
	mon.Meter("put_blob").Mark(1)

	if props == nil {
		cb("", NewOpError(InvalidPutArgument, "blob properties are required"))
		return
	}
	if body == nil {
		cb("", NewOpError(BadInputChannel, "blob body is required"))
		return
	}

	data, err := ioutil.ReadAll(io.LimitReader(body, r.cfg.MaxBlobSize+1))
	if err != nil {
		cb("", &OpError{Code: BadInputChannel, Msg: "reading blob body", Cause: err})
		return
	}
	if int64(len(data)) > r.cfg.MaxBlobSize {
		cb("", OpErrorf(BlobTooLarge, "blob exceeds the %d byte limit", r.cfg.MaxBlobSize))
		return
	}

	writable := r.cmap.WritablePartitions()
	if len(writable) == 0 {
		cb("", NewOpError(AmbryUnavailable, "no writable partitions"))
		return
	}
	partition := writable[rand.Intn(len(writable))]
	id := blob.NewV1(r.cmap.DatacenterID(), partition.ID())
	blobID := id.String()

	properties := *props
	properties.Size = int64(len(data))
	if properties.CreationTime.IsZero() {
		properties.CreationTime = r.clock.Now()
	}

	op := &operation{
		reqType: protocol.TypePut,
		blobID:  blobID,
		build: func(correlationID int32) *protocol.Request {
			return protocol.NewPutRequest(correlationID, r.cfg.Hostname, &protocol.PutRequest{
				BlobID:       blobID,
				Properties:   properties,
				UserMetadata: userMetadata,
				Blob:         data,
			})
		},
		complete: func(err error) {
			if err != nil {
				cb("", err)
				return
			}
			cb(blobID, nil)
		},
	}
	r.start(op, partition, r.cfg.Put)
}

// resolvePartition parses the blob id and locates its partition.
func (r *blobRouter) resolvePartition(blobID string) (*clustermap.Partition, error) {
	if blobID == "" {
		return nil, NewOpError(InvalidBlobID, "blob id is empty")
	}
	id, err := blob.Parse(blobID)
	if err != nil {
		return nil, &OpError{Code: InvalidBlobID, Cause: err}
	}
	partition, err := r.cmap.PartitionByID(id.Partition())
	if err != nil {
		return nil, &OpError{Code: InvalidBlobID, Cause: err}
	}
	return partition, nil
}

// start finishes assembling op for the partition and dispatches its
// first window of requests.
func (r *blobRouter) start(op *operation, partition *clustermap.Partition, oc OperationConfig) {
	replicas := append([]*clustermap.Replica(nil), partition.Replicas()...)
	if oc.SuccessTarget > len(replicas) {
		op.finish(OpErrorf(UnexpectedInternalError,
			"%s has %d replicas, success target is %d", partition.ID(), len(replicas), oc.SuccessTarget))
		return
	}
	rand.Shuffle(len(replicas), func(i, j int) {
		replicas[i], replicas[j] = replicas[j], replicas[i]
	})

	op.tracker = newTracker(replicas, oc.Parallelism, oc.SuccessTarget)
	op.deadline = r.clock.Now().Add(r.cfg.OperationTimeout)
	op.inflight = make(map[int32]pendingRequest)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		op.finish(NewOpError(RouterClosed, "router is closed"))
		return
	}
	r.live[op] = struct{}{}
	r.mu.Unlock()

	r.advance(op)
}

// advance dispatches whatever the operation's window allows right now.
func (r *blobRouter) advance(op *operation) {
	batch := op.reserve(r.clock.Now(), r.cfg.RequestTimeout, r.nextCorrelation)
	if len(batch) == 0 {
		return
	}

	r.mu.Lock()
	for _, ri := range batch {
		r.registry[ri.Request.Header.CorrelationID] = op
	}
	r.mu.Unlock()

	r.transport.Send(r.ctx, batch...)
}

// conclude finishes op with the outcome and unregisters whatever it
// still had in flight. Reports whether this call won the terminal
// transition.
func (r *blobRouter) conclude(op *operation, outcome error) bool {
	if !op.finish(outcome) {
		return false
	}
	leftovers := op.abandon()

	r.mu.Lock()
	delete(r.live, op)
	for _, cid := range leftovers {
		delete(r.registry, cid)
	}
	r.mu.Unlock()
	return true
}

// handle routes one transport response to its operation. Responses for
// finished or unknown operations are discarded.
func (r *blobRouter) handle(info replicanet.ResponseInfo) {
	cid := info.Request.Request.Header.CorrelationID

	r.mu.Lock()
	op, ok := r.registry[cid]
	delete(r.registry, cid)
	r.mu.Unlock()

	if !ok || op.isFinished() {
		mon.Meter("discarded_responses").Mark(1)
		return
	}

	decided, outcome := op.absorb(info)
	if decided {
		r.conclude(op, outcome)
		return
	}
	r.advance(op)
}

// expire enforces operation and per-request deadlines on every live
// operation.
func (r *blobRouter) expire() {
	now := r.clock.Now()

	r.mu.Lock()
	ops := make([]*operation, 0, len(r.live))
	for op := range r.live {
		ops = append(ops, op)
	}
	r.mu.Unlock()

	for _, op := range ops {
		expired, decided, outcome := op.expire(now)
		if len(expired) > 0 {
			r.mu.Lock()
			for _, cid := range expired {
				delete(r.registry, cid)
			}
			r.mu.Unlock()
		}
		if decided {
			r.conclude(op, outcome)
			continue
		}
		if len(expired) > 0 {
			r.advance(op)
		}
	}
}

// run is the driver loop: poll the transport, feed operations, check
// deadlines, repeat until closed.
func (r *blobRouter) run() {
	defer close(r.driverDone)
	for {
		select {
		case <-r.done:
			return
		default:
		}
		for _, info := range r.transport.Poll(r.cfg.PollInterval) {
			r.handle(info)
		}
		r.expire()
	}
}

// Close aborts every live operation with RouterClosed, rejects new
// submissions, stops the driver and closes the transport.
func (r *blobRouter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	live := make([]*operation, 0, len(r.live))
	for op := range r.live {
		live = append(live, op)
	}
	r.live = make(map[*operation]struct{})
	r.mu.Unlock()

	for _, op := range live {
		op.finish(NewOpError(RouterClosed, "router is closed"))
	}

	close(r.done)
	<-r.driverDone
	r.cancel()
	return r.transport.Close()
}
