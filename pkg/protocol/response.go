// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"ambry.io/ambry/pkg/blob"
)

// GetResponse carries the blob sections a replica served. Sections not
// requested (or not served) are nil.
type GetResponse struct {
	Properties   *blob.Properties
	UserMetadata []byte
	Blob         []byte
}

func (g *GetResponse) flags() GetFlags {
	var f GetFlags
	if g.Properties != nil {
		f |= FlagProperties
	}
	if g.UserMetadata != nil {
		f |= FlagUserMetadata
	}
	if g.Blob != nil {
		f |= FlagBlob
	}
	return f
}

// Response is the envelope a replica returns: the echoed request header,
// a status code, and a payload depending on the request type. Put echoes
// the blob id, get carries the served sections, delete has no body.
type Response struct {
	Header Header
	Error  ServerErrorCode
	BlobID string
	Get    *GetResponse
}

// NewResponse builds a response envelope echoing the request header.
func NewResponse(req *Request, code ServerErrorCode) *Response {
	return &Response{
		Header: req.Header,
		Error:  code,
	}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (resp *Response) MarshalBinary() ([]byte, error) {
	w := &writer{}
	resp.Header.encode(w)
	w.int16(int16(resp.Error))
	switch resp.Header.Type {
	case TypePut:
		w.string(resp.BlobID)
	case TypeGet:
		w.bool(resp.Get != nil)
		if resp.Get != nil {
			w.int16(int16(resp.Get.flags()))
			if resp.Get.Properties != nil {
				encodeProperties(w, resp.Get.Properties)
			}
			if resp.Get.UserMetadata != nil {
				w.block32(resp.Get.UserMetadata)
			}
			if resp.Get.Blob != nil {
				w.block64(resp.Get.Blob)
			}
		}
	case TypeDelete:
	default:
		return nil, Error.New("unknown response type %d", int16(resp.Header.Type))
	}
	return w.bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (resp *Response) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	resp.Header.decode(r)
	if r.err != nil {
		return r.err
	}
	resp.Error = ServerErrorCode(r.int16())
	switch resp.Header.Type {
	case TypePut:
		resp.BlobID = r.string()
	case TypeGet:
		if r.bool() {
			get := &GetResponse{}
			flags := GetFlags(r.int16())
			if flags.Has(FlagProperties) {
				get.Properties = decodeProperties(r)
			}
			if flags.Has(FlagUserMetadata) {
				get.UserMetadata = r.block32()
			}
			if flags.Has(FlagBlob) {
				get.Blob = r.block64()
			}
			resp.Get = get
		}
	case TypeDelete:
	default:
		return Error.New("unknown response type %d", int16(resp.Header.Type))
	}
	return r.finish()
}
