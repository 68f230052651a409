// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sort"
	"strings"
)

// User metadata wire format: version uint16, payload size uint32, entry
// count uint32, then length-prefixed key/value pairs (uint32 lengths,
// keys stored without the header prefix), and a trailing IEEE crc32 of
// everything before it. Blobs written by older clients carry arbitrary
// bytes instead; DecodeUserMetadata reports those as not decodable and
// callers serve the raw bytes.
const userMetadataVersion = 1

// EncodeUserMetadata serializes the x-ambry-um-* args into the versioned
// binary form. Returns nil when there is no user metadata.
func EncodeUserMetadata(args map[string]interface{}) []byte {
	keys := make([]string, 0, len(args))
	for key, value := range args {
		if _, ok := value.(string); !ok {
			continue
		}
		if IsUserMetadataHeader(key) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	write := func(v interface{}) { _ = binary.Write(&buf, binary.BigEndian, v) }

	write(uint16(userMetadataVersion))
	write(uint32(0)) // payload size, patched below
	write(uint32(len(keys)))
	for _, key := range keys {
		name := key[len(UserMetadataPrefix):]
		value := args[key].(string)
		write(uint32(len(name)))
		buf.WriteString(name)
		write(uint32(len(value)))
		buf.WriteString(value)
	}

	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[2:6], uint32(len(data)-6))

	crc := crc32.ChecksumIEEE(data)
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], crc)
	return append(data, trailer[:]...)
}

// DecodeUserMetadata parses data written by EncodeUserMetadata back into
// header form (keys carry the x-ambry-um- prefix). The bool reports
// whether data was in the versioned format; callers treat false as legacy
// raw metadata.
func DecodeUserMetadata(data []byte) (map[string]string, bool) {
	if len(data) == 0 {
		return map[string]string{}, true
	}
	const fixed = 2 + 4 + 4 + 4 // version + size + count + crc
	if len(data) < fixed {
		return nil, false
	}
	if binary.BigEndian.Uint16(data[0:2]) != userMetadataVersion {
		return nil, false
	}
	payloadSize := binary.BigEndian.Uint32(data[2:6])
	if int(payloadSize) != len(data)-10 {
		return nil, false
	}
	crc := binary.BigEndian.Uint32(data[len(data)-4:])
	if crc != crc32.ChecksumIEEE(data[:len(data)-4]) {
		return nil, false
	}

	count := binary.BigEndian.Uint32(data[6:10])
	rest := data[10 : len(data)-4]
	metadata := make(map[string]string, count)
	readBlock := func() (string, bool) {
		if len(rest) < 4 {
			return "", false
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return "", false
		}
		s := string(rest[:n])
		rest = rest[n:]
		return s, true
	}
	for i := uint32(0); i < count; i++ {
		key, ok := readBlock()
		if !ok {
			return nil, false
		}
		value, ok := readBlock()
		if !ok {
			return nil, false
		}
		metadata[UserMetadataPrefix+strings.ToLower(key)] = value
	}
	if len(rest) != 0 {
		return nil, false
	}
	return metadata, true
}
