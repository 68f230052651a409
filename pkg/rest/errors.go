// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package rest

import "fmt"

// ErrorCode classifies a request failure. The code decides the response
// status and is echoed to the client in the x-ambry-error-code header.
type ErrorCode int

// Pipeline error taxonomy.
const (
	UnknownErrorCode ErrorCode = iota
	BadRequest
	MissingArgs
	InvalidArgument
	InvalidAccount
	InvalidContainer
	UnsupportedHttpMethod
	Unauthorized
	NotFound
	Gone
	PreconditionFailed
	RangeNotSatisfiable
	ServiceUnavailable
	InternalError
	RequestChannelClosed
	RequestResponseQueuingFailure
)

func (code ErrorCode) String() string {
	switch code {
	case BadRequest:
		return "BadRequest"
	case MissingArgs:
		return "MissingArgs"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidAccount:
		return "InvalidAccount"
	case InvalidContainer:
		return "InvalidContainer"
	case UnsupportedHttpMethod:
		return "UnsupportedHttpMethod"
	case Unauthorized:
		return "Unauthorized"
	case NotFound:
		return "NotFound"
	case Gone:
		return "Gone"
	case PreconditionFailed:
		return "PreconditionFailed"
	case RangeNotSatisfiable:
		return "RangeNotSatisfiable"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	case InternalError:
		return "InternalError"
	case RequestChannelClosed:
		return "RequestChannelClosed"
	case RequestResponseQueuingFailure:
		return "RequestResponseQueuingFailure"
	}
	return "UnknownErrorCode"
}

// Status maps the error code to the response status sent to the client.
func (code ErrorCode) Status() Status {
	switch code {
	case BadRequest, MissingArgs, InvalidArgument, InvalidAccount, InvalidContainer:
		return StatusBadRequest
	case Unauthorized:
		return StatusUnauthorized
	case NotFound:
		return StatusNotFound
	case UnsupportedHttpMethod:
		return StatusMethodNotAllowed
	case Gone, RequestChannelClosed:
		return StatusGone
	case PreconditionFailed:
		return StatusPreconditionFailed
	case RangeNotSatisfiable:
		return StatusRangeNotSatisfiable
	case ServiceUnavailable, RequestResponseQueuingFailure:
		return StatusServiceUnavailable
	}
	return StatusInternalServerError
}

// Error carries a pipeline error code together with its cause. The cause
// message is preserved verbatim so collaborator failures surface to the
// client log unchanged.
type Error struct {
	Code  ErrorCode
	Msg   string
	Cause error
}

// NewError returns an Error with the given code and message.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Errorf returns an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code to an existing error. A nil err returns nil.
func WrapError(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Cause: err}
}

func (e *Error) Error() string {
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
func (e *Error) Unwrap() error { return e.Cause }

// CodeOf extracts the ErrorCode from err, unwrapping as needed. Errors
// without a code report UnknownErrorCode.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return UnknownErrorCode
}
