// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package router

import "fmt"

// Code classifies operation failures at the router level. The frontend
// maps these onto the pipeline taxonomy before anything reaches a
// client.
type Code int

// Router error taxonomy.
const (
	UnknownCode Code = iota
	InvalidBlobID
	BlobDoesNotExist
	BlobDeleted
	BlobExpired
	BlobAuthorizationFailure
	BlobTooLarge
	BadInputChannel
	AmbryUnavailable
	OperationTimedOut
	RouterClosed
	InsufficientCapacity
	InvalidPutArgument
	UnexpectedInternalError
)

func (code Code) String() string {
	switch code {
	case InvalidBlobID:
		return "InvalidBlobId"
	case BlobDoesNotExist:
		return "BlobDoesNotExist"
	case BlobDeleted:
		return "BlobDeleted"
	case BlobExpired:
		return "BlobExpired"
	case BlobAuthorizationFailure:
		return "BlobAuthorizationFailure"
	case BlobTooLarge:
		return "BlobTooLarge"
	case BadInputChannel:
		return "BadInputChannel"
	case AmbryUnavailable:
		return "AmbryUnavailable"
	case OperationTimedOut:
		return "OperationTimedOut"
	case RouterClosed:
		return "RouterClosed"
	case InsufficientCapacity:
		return "InsufficientCapacity"
	case InvalidPutArgument:
		return "InvalidPutArgument"
	case UnexpectedInternalError:
		return "UnexpectedInternalError"
	}
	return "UnknownCode"
}

// OpError is the terminal error of a router operation.
type OpError struct {
	Code  Code
	Msg   string
	Cause error
}

// NewOpError returns an OpError with the given code and message.
func NewOpError(code Code, msg string) *OpError {
	return &OpError{Code: code, Msg: msg}
}

// OpErrorf returns an OpError with a formatted message.
func OpErrorf(code Code, format string, args ...interface{}) *OpError {
	return &OpError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *OpError) Error() string {
	switch {
	case e.Msg != "" && e.Cause != nil:
		return e.Msg + ": " + e.Cause.Error()
	case e.Msg != "":
		return e.Msg
	case e.Cause != nil:
		return e.Cause.Error()
	}
	return e.Code.String()
}

// Unwrap returns the cause.
func (e *OpError) Unwrap() error { return e.Cause }

// CodeOf extracts the router Code from err, unwrapping as needed.
// Errors without a code report UnknownCode.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*OpError); ok {
			return e.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return UnknownCode
}
