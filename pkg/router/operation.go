// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package router

import (
	"sync"
	"sync/atomic"
	"time"

	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/protocol"
	"ambry.io/ambry/pkg/replicanet"
)

// pendingRequest is one issued replica request awaiting its response.
type pendingRequest struct {
	replica  *clustermap.Replica
	deadline time.Time
}

// operation is the state machine shared by delete, get and put. The
// type specific pieces plug in through build, terminal, onSuccess and
// complete. Everything below mu is guarded by it; finished is the
// compare-and-set terminal flag that guarantees single completion no
// matter who (driver, submitter or Close) decides the operation.
type operation struct {
	reqType  protocol.RequestType
	blobID   string
	tracker  *tracker
	deadline time.Time

	// build produces the request envelope for one replica call.
	build func(correlationID int32) *protocol.Request
	// terminal short-circuits the operation as soon as a replica
	// answers with one of these codes, regardless of quorum state.
	terminal map[protocol.ServerErrorCode]Code
	// onSuccess captures the payload of a successful response. Called
	// with mu held.
	onSuccess func(resp *protocol.Response)
	// complete delivers the outcome to the caller exactly once.
	complete func(err error)

	mu       sync.Mutex
	inflight map[int32]pendingRequest

	sawAuth       bool
	sawExpired    bool
	sawDeleted    bool
	sawTimeout    bool
	notFound      int
	healthWorst   protocol.ServerErrorCode
	transportErrs int

	finished int32
}

// finish performs the exactly-once terminal transition, delivering the
// outcome. It reports whether this caller won the transition.
func (op *operation) finish(err error) bool {
	if !atomic.CompareAndSwapInt32(&op.finished, 0, 1) {
		return false
	}
	op.complete(err)
	return true
}

func (op *operation) isFinished() bool {
	return atomic.LoadInt32(&op.finished) == 1
}

// reserve issues as many replica requests as the parallelism window
// allows, stamping each with its per-request deadline. The router
// registers the correlation ids before anything hits the wire.
func (op *operation) reserve(now time.Time, requestTimeout time.Duration, nextID func() int32) []replicanet.RequestInfo {
	op.mu.Lock()
	defer op.mu.Unlock()

	var batch []replicanet.RequestInfo
	for {
		replica := op.tracker.next()
		if replica == nil {
			break
		}
		cid := nextID()
		op.inflight[cid] = pendingRequest{replica: replica, deadline: now.Add(requestTimeout)}
		batch = append(batch, replicanet.RequestInfo{
			Replica: replica,
			Request: op.build(cid),
		})
	}
	return batch
}

// absorb folds one response into the operation. decided reports whether
// the operation reached its terminal state; outcome is then its result,
// nil meaning success.
func (op *operation) absorb(info replicanet.ResponseInfo) (decided bool, outcome error) {
	op.mu.Lock()
	defer op.mu.Unlock()

	cid := info.Request.Request.Header.CorrelationID
	pending, ok := op.inflight[cid]
	if !ok {
		// the request was already written off as timed out
		return false, nil
	}
	delete(op.inflight, cid)

	switch {
	case info.Err != nil:
		op.transportErrs++
		op.tracker.onResponse(pending.replica, info.Err)

	case info.Response.Error == protocol.NoError:
		if op.onSuccess != nil {
			op.onSuccess(info.Response)
		}
		op.tracker.onResponse(pending.replica, nil)

	default:
		code := info.Response.Error
		if routerCode, ok := op.terminal[code]; ok {
			return true, NewOpError(routerCode, "replica "+pending.replica.String()+" reported "+code.String())
		}
		op.recordFailure(code)
		op.tracker.onResponse(pending.replica, NewOpError(AmbryUnavailable, code.String()))
	}

	if op.tracker.succeeded() {
		return true, nil
	}
	if op.tracker.hasFailed() {
		return true, op.resolve()
	}
	return false, nil
}

// recordFailure notes a non-terminal replica error for resolution.
func (op *operation) recordFailure(code protocol.ServerErrorCode) {
	switch code {
	case protocol.AuthorizationFailure:
		op.sawAuth = true
	case protocol.BlobExpired:
		op.sawExpired = true
	case protocol.BlobDeleted:
		op.sawDeleted = true
	case protocol.BlobNotFound:
		op.notFound++
	default:
		if healthRank(code) > healthRank(op.healthWorst) {
			op.healthWorst = code
		}
	}
}

// expire times out overdue requests, freeing their window slots. When
// the operation deadline itself has passed the operation aborts. The
// ids the operation gave up on are returned so the router can
// unregister them.
func (op *operation) expire(now time.Time) (expired []int32, decided bool, outcome error) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if !now.Before(op.deadline) {
		return nil, true, NewOpError(OperationTimedOut, "operation deadline exceeded")
	}

	for cid, pending := range op.inflight {
		if now.Before(pending.deadline) {
			continue
		}
		delete(op.inflight, cid)
		expired = append(expired, cid)
		op.sawTimeout = true
		op.tracker.onResponse(pending.replica, NewOpError(OperationTimedOut, "request timed out"))
	}
	if len(expired) > 0 && op.tracker.hasFailed() {
		return expired, true, op.resolve()
	}
	return expired, false, nil
}

// abandon empties the inflight table, returning the correlation ids so
// late responses can be unregistered and discarded.
func (op *operation) abandon() []int32 {
	op.mu.Lock()
	defer op.mu.Unlock()

	ids := make([]int32, 0, len(op.inflight))
	for cid := range op.inflight {
		ids = append(ids, cid)
		delete(op.inflight, cid)
	}
	return ids
}

// resolve combines the observed replica codes into the operation
// outcome. Codes that are positive proof about the blob outrank
// ambiguous server-health signals; not-found counts only when every
// processed response agreed on it.
func (op *operation) resolve() error {
	switch {
	case op.sawAuth:
		return NewOpError(BlobAuthorizationFailure, "a replica rejected the operation as unauthorized")
	case op.sawExpired:
		return NewOpError(BlobExpired, "blob is expired")
	case op.sawDeleted:
		return NewOpError(BlobDeleted, "blob is deleted")
	case op.unanimousNotFound():
		return NewOpError(BlobDoesNotExist, "no replica knows the blob")
	case op.healthWorst != protocol.NoError:
		return OpErrorf(AmbryUnavailable, "replicas unhealthy, worst code %v", op.healthWorst)
	case op.transportErrs > 0:
		return OpErrorf(AmbryUnavailable, "%d replicas unreachable", op.transportErrs)
	case op.sawTimeout:
		return NewOpError(OperationTimedOut, "replica requests timed out")
	}
	return NewOpError(UnexpectedInternalError, "operation failed without a failure cause")
}

func (op *operation) unanimousNotFound() bool {
	return op.notFound > 0 &&
		op.tracker.successes == 0 &&
		op.notFound == op.tracker.failures
}

// healthRank orders the ambiguous server-health codes; the more
// specific signal wins the representative slot in the error message.
func healthRank(code protocol.ServerErrorCode) int {
	switch code {
	case protocol.DiskUnavailable:
		return 8
	case protocol.ReplicaUnavailable:
		return 7
	case protocol.PartitionUnknown:
		return 6
	case protocol.IOError:
		return 5
	case protocol.DataCorrupt:
		return 4
	case protocol.TemporarilyDisabled:
		return 3
	case protocol.BadRequest:
		return 2
	case protocol.UnknownError:
		return 1
	}
	return 0
}
