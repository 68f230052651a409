// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package protocol implements the binary wire format spoken between the
// frontend router and datanode replicas. All integers are big-endian.
// Strings are uint16 length-prefixed UTF-8, metadata blocks are uint32
// length-prefixed, blob payloads are uint64 length-prefixed.
package protocol

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the errs class of wire format errors.
var Error = errs.Class("protocol error")

// CurrentVersion is the only request/response envelope version in use.
const CurrentVersion = int16(1)

// ServerErrorCode is the status a replica reports for one request.
type ServerErrorCode int16

// Replica status codes.
const (
	NoError ServerErrorCode = iota
	IOError
	BlobNotFound
	BlobDeleted
	BlobExpired
	DiskUnavailable
	ReplicaUnavailable
	PartitionUnknown
	DataCorrupt
	AuthorizationFailure
	BadRequest
	TemporarilyDisabled
	UnknownError
)

func (code ServerErrorCode) String() string {
	switch code {
	case NoError:
		return "no error"
	case IOError:
		return "io error"
	case BlobNotFound:
		return "blob not found"
	case BlobDeleted:
		return "blob deleted"
	case BlobExpired:
		return "blob expired"
	case DiskUnavailable:
		return "disk unavailable"
	case ReplicaUnavailable:
		return "replica unavailable"
	case PartitionUnknown:
		return "partition unknown"
	case DataCorrupt:
		return "data corrupt"
	case AuthorizationFailure:
		return "authorization failure"
	case BadRequest:
		return "bad request"
	case TemporarilyDisabled:
		return "temporarily disabled"
	case UnknownError:
		return "unknown error"
	default:
		return fmt.Sprintf("server error %d", int16(code))
	}
}

// RequestType discriminates the request/response payload union.
type RequestType int16

// Request types.
const (
	TypePut    RequestType = 1
	TypeGet    RequestType = 2
	TypeDelete RequestType = 3
)

func (t RequestType) String() string {
	switch t {
	case TypePut:
		return "put"
	case TypeGet:
		return "get"
	case TypeDelete:
		return "delete"
	default:
		return fmt.Sprintf("type %d", int16(t))
	}
}

// GetFlags selects which blob sections a get request fetches.
type GetFlags int16

// Blob sections.
const (
	FlagProperties GetFlags = 1 << iota
	FlagUserMetadata
	FlagBlob
)

// Common section combinations.
const (
	GetBlobInfo = FlagProperties | FlagUserMetadata
	GetAll      = GetBlobInfo | FlagBlob
)

// Has reports whether all sections of flag are selected.
func (f GetFlags) Has(flag GetFlags) bool { return f&flag == flag }

// Header prefixes every request and is echoed on the response so the
// router can match responses to inflight requests by correlation id.
type Header struct {
	Version       int16
	Type          RequestType
	CorrelationID int32
	ClientID      string
}

func (h Header) encode(w *writer) {
	w.int16(h.Version)
	w.int16(int16(h.Type))
	w.int32(h.CorrelationID)
	w.string(h.ClientID)
}

func (h *Header) decode(r *reader) {
	h.Version = r.int16()
	h.Type = RequestType(r.int16())
	h.CorrelationID = r.int32()
	h.ClientID = r.string()
	if r.err == nil && h.Version != CurrentVersion {
		r.err = Error.New("unsupported version %d", h.Version)
	}
}
