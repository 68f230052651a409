// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package replicanet

import (
	"encoding"

	grpcencoding "google.golang.org/grpc/encoding"
)

// CodecName is the grpc content subtype the blob protocol codec
// registers under. Both ends of a call must import this package so the
// codec is known to their grpc runtimes.
const CodecName = "ambry-wire"

func init() {
	grpcencoding.RegisterCodec(wireCodec{})
}

// wireCodec marshals protocol envelopes through their binary form
// instead of protobuf.
type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, Error.New("cannot marshal %T on the replica wire", v)
	}
	data, err := m.MarshalBinary()
	return data, Error.Wrap(err)
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	u, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return Error.New("cannot unmarshal %T from the replica wire", v)
	}
	return Error.Wrap(u.UnmarshalBinary(data))
}

func (wireCodec) Name() string { return CodecName }
