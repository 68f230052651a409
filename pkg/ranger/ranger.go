// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package ranger implements lazy byte sources that support seeking to
// subranges without reading the rest of the data.
package ranger

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/zeebo/errs"
)

// Error is the errs class of standard Ranger errors.
var Error = errs.Class("ranger error")

// A Ranger is a flexible data stream type that allows for more effective
// pipelining during seeking. A Ranger can return multiple parallel Readers
// for any subranges.
type Ranger interface {
	Size() int64
	Range(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// ByteRanger turns a byte slice into a Ranger.
type ByteRanger []byte

// Size implements Ranger.Size.
func (b ByteRanger) Size() int64 { return int64(len(b)) }

// Range implements Ranger.Range.
func (b ByteRanger) Range(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, Error.New("negative offset")
	}
	if length < 0 {
		return nil, Error.New("negative length")
	}
	if offset+length > int64(len(b)) {
		return nil, Error.New("range beyond end")
	}
	return ioutil.NopCloser(bytes.NewReader(b[offset : offset+length])), nil
}
