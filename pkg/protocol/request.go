// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
)

// PutRequest stores a blob with its properties and user metadata on the
// replica's partition.
type PutRequest struct {
	BlobID       string
	Properties   blob.Properties
	UserMetadata []byte
	Blob         []byte
}

// GetRequest fetches the selected sections of a blob. Options widens
// which blob states the replica may serve.
type GetRequest struct {
	BlobID  string
	Flags   GetFlags
	Options rest.GetOption
}

// DeleteRequest marks a blob deleted. DeletionTime is milliseconds
// since the epoch.
type DeleteRequest struct {
	BlobID       string
	DeletionTime int64
}

// Request is the envelope sent to a replica: a header and exactly one
// payload matching Header.Type.
type Request struct {
	Header Header
	Put    *PutRequest
	Get    *GetRequest
	Delete *DeleteRequest
}

// NewPutRequest wraps put in a versioned envelope.
func NewPutRequest(correlationID int32, clientID string, put *PutRequest) *Request {
	return &Request{
		Header: Header{
			Version:       CurrentVersion,
			Type:          TypePut,
			CorrelationID: correlationID,
			ClientID:      clientID,
		},
		Put: put,
	}
}

// NewGetRequest wraps get in a versioned envelope.
func NewGetRequest(correlationID int32, clientID string, get *GetRequest) *Request {
	return &Request{
		Header: Header{
			Version:       CurrentVersion,
			Type:          TypeGet,
			CorrelationID: correlationID,
			ClientID:      clientID,
		},
		Get: get,
	}
}

// NewDeleteRequest wraps del in a versioned envelope.
func NewDeleteRequest(correlationID int32, clientID string, del *DeleteRequest) *Request {
	return &Request{
		Header: Header{
			Version:       CurrentVersion,
			Type:          TypeDelete,
			CorrelationID: correlationID,
			ClientID:      clientID,
		},
		Delete: del,
	}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (req *Request) MarshalBinary() ([]byte, error) {
	w := &writer{}
	req.Header.encode(w)
	switch req.Header.Type {
	case TypePut:
		if req.Put == nil {
			return nil, Error.New("put request missing payload")
		}
		w.string(req.Put.BlobID)
		encodeProperties(w, &req.Put.Properties)
		w.block32(req.Put.UserMetadata)
		w.block64(req.Put.Blob)
	case TypeGet:
		if req.Get == nil {
			return nil, Error.New("get request missing payload")
		}
		w.string(req.Get.BlobID)
		w.int16(int16(req.Get.Flags))
		w.int16(int16(req.Get.Options))
	case TypeDelete:
		if req.Delete == nil {
			return nil, Error.New("delete request missing payload")
		}
		w.string(req.Delete.BlobID)
		w.int64(req.Delete.DeletionTime)
	default:
		return nil, Error.New("unknown request type %d", int16(req.Header.Type))
	}
	return w.bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (req *Request) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	req.Header.decode(r)
	if r.err != nil {
		return r.err
	}
	switch req.Header.Type {
	case TypePut:
		put := &PutRequest{}
		put.BlobID = r.string()
		put.Properties = *decodeProperties(r)
		put.UserMetadata = r.block32()
		put.Blob = r.block64()
		req.Put = put
	case TypeGet:
		get := &GetRequest{}
		get.BlobID = r.string()
		get.Flags = GetFlags(r.int16())
		get.Options = rest.GetOption(r.int16())
		req.Get = get
	case TypeDelete:
		del := &DeleteRequest{}
		del.BlobID = r.string()
		del.DeletionTime = r.int64()
		req.Delete = del
	default:
		return Error.New("unknown request type %d", int16(req.Header.Type))
	}
	return r.finish()
}
