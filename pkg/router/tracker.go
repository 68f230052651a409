// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package router

import (
	"ambry.io/ambry/pkg/clustermap"
)

// tracker drives the replica fan-out of one operation. It hands out
// replicas while the parallelism window has room and accounts responses
// until the operation is decided. At all times
//
//	successes + failures + inflight + pending == len(replicas)
//
// where pending are the replicas not handed out yet.
type tracker struct {
	replicas      []*clustermap.Replica
	parallelism   int
	successTarget int

	cursor    int
	inflight  int
	successes int
	failures  int
}

func newTracker(replicas []*clustermap.Replica, parallelism, successTarget int) *tracker {
	return &tracker{
		replicas:      replicas,
		parallelism:   parallelism,
		successTarget: successTarget,
	}
}

// next returns the next replica to contact, or nil when the window is
// full, no replicas remain, or the operation is already decided.
func (t *tracker) next() *clustermap.Replica {
	if t.done() || t.inflight >= t.parallelism || t.cursor >= len(t.replicas) {
		return nil
	}
	replica := t.replicas[t.cursor]
	t.cursor++
	t.inflight++
	return replica
}

// onResponse accounts the outcome of one issued request. A nil err is a
// success.
func (t *tracker) onResponse(replica *clustermap.Replica, err error) {
	t.inflight--
	if err == nil {
		t.successes++
	} else {
		t.failures++
	}
}

// succeeded reports whether the success target has been met.
func (t *tracker) succeeded() bool {
	return t.successes >= t.successTarget
}

// hasFailed reports whether the success target is out of reach even if
// every outstanding and pending replica succeeds.
func (t *tracker) hasFailed() bool {
	return len(t.replicas)-t.failures < t.successTarget
}

// done reports whether the operation is decided either way.
func (t *tracker) done() bool {
	return t.succeeded() || t.hasFailed()
}

// pending returns how many replicas have not been contacted yet.
func (t *tracker) pending() int {
	return len(t.replicas) - t.cursor
}
