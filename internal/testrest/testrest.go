// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package testrest implements in-memory rest.Request and
// rest.ResponseChannel types for exercising the frontend pipeline
// without an HTTP server.
package testrest

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zeebo/errs"

	"ambry.io/ambry/pkg/rest"
)

// Error is the errs class of testrest errors.
var Error = errs.Class("testrest error")

// Request is an in-memory rest.Request. Query parameters in the URI are
// merged into Args the way the server request adapter merges them.
type Request struct {
	mu     sync.Mutex
	method rest.Method
	uri    string
	args   map[string]interface{}
	body   io.Reader
	open   bool
}

// NewRequest builds a request from its parts. args keys should be
// lower-cased the way the adapter lower-cases header names; a nil map is
// allowed.
func NewRequest(method rest.Method, uri string, args map[string]interface{}, body []byte) *Request {
	merged := make(map[string]interface{}, len(args))
	for name, value := range args {
		merged[name] = value
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		if query, err := url.ParseQuery(uri[i+1:]); err == nil {
			for name, values := range query {
				if len(values) > 0 {
					merged[name] = values[0]
				}
			}
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	return &Request{
		method: method,
		uri:    uri,
		args:   merged,
		body:   reader,
		open:   true,
	}
}

// Method implements rest.Request.
func (r *Request) Method() rest.Method { return r.method }

// URI implements rest.Request.
func (r *Request) URI() string { return r.uri }

// Path implements rest.Request. It is the URI without the query string.
func (r *Request) Path() string {
	if i := strings.IndexByte(r.uri, '?'); i >= 0 {
		return r.uri[:i]
	}
	return r.uri
}

// Args implements rest.Request.
func (r *Request) Args() map[string]interface{} { return r.args }

// Body implements rest.Request.
func (r *Request) Body() io.Reader { return r.body }

// IsOpen implements rest.Request.
func (r *Request) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Close implements rest.Request.
func (r *Request) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

// ResponseChannel is an in-memory rest.ResponseChannel that records
// everything written to it.
type ResponseChannel struct {
	mu          sync.Mutex
	status      rest.Status
	headers     map[string]interface{}
	body        bytes.Buffer
	open        bool
	wrote       bool
	completions int
	err         error
	done        chan struct{}
}

// NewResponseChannel returns an open channel with status 200.
func NewResponseChannel() *ResponseChannel {
	return &ResponseChannel{
		status:  rest.StatusOK,
		headers: make(map[string]interface{}),
		open:    true,
		done:    make(chan struct{}),
	}
}

// Write implements rest.ResponseChannel.
func (c *ResponseChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, Error.New("channel is closed")
	}
	c.wrote = true
	return c.body.Write(p)
}

// SetStatus implements rest.ResponseChannel.
func (c *ResponseChannel) SetStatus(status rest.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return Error.New("channel is closed")
	}
	if c.wrote {
		return Error.New("response already started")
	}
	c.status = status
	return nil
}

// Status implements rest.ResponseChannel.
func (c *ResponseChannel) Status() rest.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetHeader implements rest.ResponseChannel.
func (c *ResponseChannel) SetHeader(name string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return Error.New("channel is closed")
	}
	if c.wrote {
		return Error.New("response already started")
	}
	c.headers[name] = value
	return nil
}

// OnResponseComplete implements rest.ResponseChannel. Only the first
// call records the outcome; later calls only bump the completion count.
func (c *ResponseChannel) OnResponseComplete(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions++
	if c.completions > 1 {
		return
	}
	c.err = err
	c.open = false
	close(c.done)
}

// IsOpen implements rest.ResponseChannel.
func (c *ResponseChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// CloseChannel simulates the client going away. Writes and header sets
// fail afterwards.
func (c *ResponseChannel) CloseChannel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// Header returns the recorded response header, or nil.
func (c *ResponseChannel) Header(name string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[name]
}

// Body returns a copy of everything written so far.
func (c *ResponseChannel) Body() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.body.Bytes()...)
}

// Completions returns how many times OnResponseComplete ran.
func (c *ResponseChannel) Completions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completions
}

// CompletionError returns the recorded terminal outcome.
func (c *ResponseChannel) CompletionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Await blocks until the response completes and returns its outcome. It
// fails the test after ten seconds.
func (c *ResponseChannel) Await(t testing.TB) error {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		t.Fatal("response did not complete")
	}
	return c.CompletionError()
}

// Handler is a rest.ResponseHandler that delivers responses inline in
// the submitting goroutine. When Err is set, HandleResponse fails
// without delivering, which is how a saturated response queue behaves.
type Handler struct {
	Err error
}

// HandleResponse implements rest.ResponseHandler.
func (h *Handler) HandleResponse(req rest.Request, resp rest.ResponseChannel, body io.ReadCloser, err error) error {
	if h.Err != nil {
		return h.Err
	}
	if err == nil && body != nil {
		if _, copyErr := io.Copy(resp, body); copyErr != nil {
			err = copyErr
		}
	}
	if body != nil {
		_ = body.Close()
	}
	resp.OnResponseComplete(err)
	return nil
}
