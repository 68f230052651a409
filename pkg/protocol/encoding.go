// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"ambry.io/ambry/pkg/blob"
)

// writer accumulates big-endian fields.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

func (w *writer) uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) int16(v int16) { w.uint16(uint16(v)) }
func (w *writer) int32(v int32) { w.uint32(uint32(v)) }
func (w *writer) int64(v int64) { w.uint64(uint64(v)) }

func (w *writer) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// string writes a uint16 length-prefixed string.
func (w *writer) string(s string) {
	w.uint16(uint16(len(s)))
	w.buf.WriteString(s)
}

// block32 writes a uint32 length-prefixed byte block.
func (w *writer) block32(b []byte) {
	w.uint32(uint32(len(b)))
	w.buf.Write(b)
}

// block64 writes a uint64 length-prefixed byte block.
func (w *writer) block64(b []byte) {
	w.uint64(uint64(len(b)))
	w.buf.Write(b)
}

// reader consumes big-endian fields with a sticky error. Once a read
// fails every later read returns the zero value.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.err = Error.New("truncated input")
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) int16() int16 { return int16(r.uint16()) }
func (r *reader) int32() int32 { return int32(r.uint32()) }
func (r *reader) int64() int64 { return int64(r.uint64()) }

func (r *reader) bool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

func (r *reader) string() string {
	n := int(r.uint16())
	return string(r.take(n))
}

func (r *reader) block32() []byte {
	n := int(r.uint32())
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) block64() []byte {
	n := r.uint64()
	if r.err == nil && n > math.MaxInt32 {
		r.err = Error.New("block too large: %d bytes", n)
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, int(n))
	copy(out, b)
	return out
}

// finish faults when decoded input has trailing bytes.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.remaining() != 0 {
		return Error.New("%d trailing bytes", r.remaining())
	}
	return nil
}

// Blob properties travel as a fixed field sequence. TTL is carried with
// second granularity, creation time with millisecond granularity.

func encodeProperties(w *writer, p *blob.Properties) {
	w.int64(p.Size)
	if p.TTL < 0 {
		w.int64(-1)
	} else {
		w.int64(int64(p.TTL / time.Second))
	}
	w.int64(p.CreationTime.UnixNano() / int64(time.Millisecond))
	w.int16(p.AccountID)
	w.int16(p.ContainerID)
	w.bool(p.Private)
	w.string(p.ServiceID)
	w.string(p.OwnerID)
	w.string(p.ContentType)
}

func decodeProperties(r *reader) *blob.Properties {
	p := &blob.Properties{}
	p.Size = r.int64()
	if secs := r.int64(); secs < 0 {
		p.TTL = blob.TTLInfinite
	} else {
		p.TTL = time.Duration(secs) * time.Second
	}
	ms := r.int64()
	p.CreationTime = time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
	p.AccountID = r.int16()
	p.ContainerID = r.int16()
	p.Private = r.bool()
	p.ServiceID = r.string()
	p.OwnerID = r.string()
	p.ContentType = r.string()
	return p
}
