// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package restserver

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"ambry.io/ambry/pkg/rest"
)

// submission is one queued response delivery.
type submission struct {
	req  rest.Request
	resp rest.ResponseChannel
	body io.ReadCloser
	err  error
}

// AsyncResponseHandler streams response bodies on a bounded worker
// pool so the pipeline goroutines never block on slow clients.
type AsyncResponseHandler struct {
	log     *zap.Logger
	workers int

	mu      sync.Mutex
	queue   chan submission
	running bool
	wg      sync.WaitGroup
}

// NewAsyncResponseHandler sizes the worker pool and queue.
func NewAsyncResponseHandler(log *zap.Logger, workers, queueSize int) *AsyncResponseHandler {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &AsyncResponseHandler{
		log:     log,
		workers: workers,
		queue:   make(chan submission, queueSize),
	}
}

// Start launches the workers.
func (h *AsyncResponseHandler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return Error.New("response handler already started")
	}
	h.running = true
	for i := 0; i < h.workers; i++ {
		h.wg.Add(1)
		go h.worker()
	}
	return nil
}

// Shutdown stops accepting submissions and waits for the queued ones
// to drain.
func (h *AsyncResponseHandler) Shutdown() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.queue)
	h.mu.Unlock()
	h.wg.Wait()
}

// HandleResponse implements rest.ResponseHandler. A stopped handler or
// a full queue rejects the submission without touching the channel.
func (h *AsyncResponseHandler) HandleResponse(req rest.Request, resp rest.ResponseChannel, body io.ReadCloser, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return rest.NewError(rest.RequestResponseQueuingFailure, "response handler is not running")
	}
	select {
	case h.queue <- submission{req: req, resp: resp, body: body, err: err}:
		return nil
	default:
		mon.Meter("response_queue_overflows").Mark(1)
		return rest.NewError(rest.RequestResponseQueuingFailure, "response queue is full")
	}
}

func (h *AsyncResponseHandler) worker() {
	defer h.wg.Done()
	for sub := range h.queue {
		h.deliver(sub)
	}
}

// deliver streams the body into the channel and records the outcome.
func (h *AsyncResponseHandler) deliver(sub submission) {
	err := sub.err
	if err == nil && sub.body != nil {
		if _, copyErr := io.Copy(sub.resp, sub.body); copyErr != nil {
			mon.Meter("response_copy_failures").Mark(1)
			h.log.Debug("response body copy failed", zap.Error(copyErr))
			err = copyErr
		}
	}
	if sub.body != nil {
		if closeErr := sub.body.Close(); closeErr != nil {
			h.log.Debug("response body close failed", zap.Error(closeErr))
		}
	}
	sub.resp.OnResponseComplete(err)
}
