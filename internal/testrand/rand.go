// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package testrand implements generating random base types for testing.
package testrand

import (
	"io"
	"math/rand"
)

// Intn returns, as an int, a non-negative pseudo-random number in [0,n)
// from the default Source. It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

// Int63n returns, as an int64, a non-negative pseudo-random number in [0,n)
// from the default Source. It panics if n <= 0.
func Int63n(n int64) int64 {
	return rand.Int63n(n)
}

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// Bytes generates size amount of random data.
func Bytes(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// Reader creates a new random data reader.
func Reader() io.Reader {
	return rand.New(rand.NewSource(rand.Int63()))
}

const letters = "abcdefghijklmnopqrstuvwxyz0123456789"

// String generates a random name-safe string of length n.
func String(n int) string {
	data := make([]byte, n)
	Read(data)
	for i, b := range data {
		data[i] = letters[int(b)%len(letters)]
	}
	return string(data)
}

// AccountID creates a random non-sentinel account id.
func AccountID() int16 {
	return int16(1 + Intn(1<<14))
}

// ContainerID creates a random non-sentinel container id.
func ContainerID() int16 {
	return int16(2 + Intn(1<<14))
}

// PartitionID creates a random partition id.
func PartitionID() uint64 {
	return uint64(rand.Int63())
}
