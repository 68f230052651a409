// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package rest defines the transport-agnostic request and response
// abstractions the frontend pipeline is written against. A server layer
// (pkg/restserver) adapts real HTTP traffic onto these types; tests use
// in-memory implementations.
package rest

import (
	"io"
	"strings"
)

// Method is the REST method of a request.
type Method int

// Known REST methods. Anything the frontend does not serve parses as
// MethodUnknown and is answered with UnsupportedHttpMethod.
const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodDelete
	MethodPut
	MethodOptions
)

// MethodFromString parses an HTTP verb, case-insensitively.
func MethodFromString(s string) Method {
	switch strings.ToUpper(s) {
	case "GET":
		return MethodGet
	case "HEAD":
		return MethodHead
	case "POST":
		return MethodPost
	case "DELETE":
		return MethodDelete
	case "PUT":
		return MethodPut
	case "OPTIONS":
		return MethodOptions
	}
	return MethodUnknown
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	case MethodDelete:
		return "DELETE"
	case MethodPut:
		return "PUT"
	case MethodOptions:
		return "OPTIONS"
	}
	return "UNKNOWN"
}

// Status is a response status. Values use the HTTP status numbers so the
// server layer can write them directly.
type Status int

// Response statuses used by the frontend.
const (
	StatusOK                   Status = 200
	StatusCreated              Status = 201
	StatusAccepted             Status = 202
	StatusPartialContent       Status = 206
	StatusNotModified          Status = 304
	StatusBadRequest           Status = 400
	StatusUnauthorized         Status = 401
	StatusForbidden            Status = 403
	StatusNotFound             Status = 404
	StatusMethodNotAllowed     Status = 405
	StatusProxyAuthRequired    Status = 407
	StatusGone                 Status = 410
	StatusPreconditionFailed   Status = 412
	StatusRangeNotSatisfiable  Status = 416
	StatusInternalServerError  Status = 500
	StatusServiceUnavailable   Status = 503
	StatusInsufficientCapacity Status = 507
)

// Request is a parsed inbound REST request. Args carries the lower-cased
// headers merged with the query parameters plus any internal keys written
// by the pipeline; it is private to the request and not safe for
// concurrent mutation.
type Request interface {
	Method() Method
	URI() string
	Path() string
	Args() map[string]interface{}
	Body() io.Reader
	IsOpen() bool
	Close() error
}

// ResponseChannel is the write side of a request. Headers and status may
// be set until the first Write; OnResponseComplete marks the terminal
// outcome and must be called exactly once.
type ResponseChannel interface {
	io.Writer
	SetStatus(status Status) error
	Status() Status
	SetHeader(name string, value interface{}) error
	OnResponseComplete(err error)
	IsOpen() bool
}

// ResponseHandler submits completed responses for asynchronous delivery.
// A non-nil return means the response could not be queued and the caller
// still owns the request, channel and body.
type ResponseHandler interface {
	HandleResponse(req Request, resp ResponseChannel, body io.ReadCloser, err error) error
}
