// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package restserver

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"ambry.io/ambry/pkg/rest"
)

// request adapts *http.Request to rest.Request. Header names are
// lower-cased and query parameters are merged into the args, first
// value wins.
type request struct {
	method rest.Method
	uri    string
	path   string
	args   map[string]interface{}
	body   io.ReadCloser

	mu   sync.Mutex
	open bool
}

func newRequest(r *http.Request) *request {
	args := make(map[string]interface{}, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			args[strings.ToLower(name)] = values[0]
		}
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			args[name] = values[0]
		}
	}
	return &request{
		method: rest.MethodFromString(r.Method),
		uri:    r.URL.RequestURI(),
		path:   r.URL.Path,
		args:   args,
		body:   r.Body,
		open:   true,
	}
}

// Method implements rest.Request.
func (r *request) Method() rest.Method { return r.method }

// URI implements rest.Request.
func (r *request) URI() string { return r.uri }

// Path implements rest.Request.
func (r *request) Path() string { return r.path }

// Args implements rest.Request.
func (r *request) Args() map[string]interface{} { return r.args }

// Body implements rest.Request.
func (r *request) Body() io.Reader { return r.body }

// IsOpen implements rest.Request.
func (r *request) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Close implements rest.Request. The underlying body is closed once.
func (r *request) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil
	}
	r.open = false
	return Error.Wrap(r.body.Close())
}
