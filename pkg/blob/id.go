// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package blob defines blob identifiers and the typed properties stored
// alongside blob bytes.
package blob

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/btcsuite/btcutil/base58"
	"github.com/zeebo/errs"

	"ambry.io/ambry/pkg/clustermap"
)

// ErrInvalidID is the errs class for blob id strings that do not decode.
var ErrInvalidID = errs.Class("invalid blob id")

// Blob id format versions. Version 1 predates accounts and containers;
// decoded v1 ids report the unknown sentinels for both.
const (
	Version1 = byte(1)
	Version2 = byte(2)
)

// UnknownAccountID / UnknownContainerID are what v1 ids report for the
// fields they do not carry. They match the account directory sentinels.
const (
	UnknownAccountID   = int16(-1)
	UnknownContainerID = int16(-1)
)

const (
	v1PayloadLen = 1 + 8 + 16
	v2PayloadLen = 1 + 2 + 2 + 8 + 16
)

// ID identifies one stored blob. The string form is a base58
// check-encoding whose version byte is the blob id version; the payload
// is a fixed big-endian layout:
//
//	v1: datacenter(1) partition(8) entropy(16)
//	v2: datacenter(1) account(2) container(2) partition(8) entropy(16)
type ID struct {
	version     byte
	datacenter  uint8
	accountID   int16
	containerID int16
	partition   clustermap.PartitionID
	entropy     [16]byte
}

// NewV1 mints a v1 id on the given partition with fresh entropy.
func NewV1(datacenter uint8, partition clustermap.PartitionID) ID {
	id := ID{
		version:     Version1,
		datacenter:  datacenter,
		accountID:   UnknownAccountID,
		containerID: UnknownContainerID,
		partition:   partition,
	}
	_, _ = rand.Read(id.entropy[:])
	return id
}

// NewV2 mints a v2 id carrying the owning account and container.
func NewV2(datacenter uint8, accountID, containerID int16, partition clustermap.PartitionID) ID {
	id := ID{
		version:     Version2,
		datacenter:  datacenter,
		accountID:   accountID,
		containerID: containerID,
		partition:   partition,
	}
	_, _ = rand.Read(id.entropy[:])
	return id
}

// Version returns the id format version.
func (id ID) Version() byte { return id.version }

// Datacenter returns the id of the datacenter the blob originated in.
func (id ID) Datacenter() uint8 { return id.datacenter }

// AccountID returns the owning account, or UnknownAccountID for v1 ids.
func (id ID) AccountID() int16 { return id.accountID }

// ContainerID returns the owning container, or UnknownContainerID for v1 ids.
func (id ID) ContainerID() int16 { return id.containerID }

// Partition returns the partition holding the blob's replicas.
func (id ID) Partition() clustermap.PartitionID { return id.partition }

// String encodes the id into its URL-safe form.
func (id ID) String() string {
	var payload []byte
	switch id.version {
	case Version2:
		payload = make([]byte, 0, v2PayloadLen)
		payload = append(payload, id.datacenter)
		payload = appendUint16(payload, uint16(id.accountID))
		payload = appendUint16(payload, uint16(id.containerID))
	default:
		payload = make([]byte, 0, v1PayloadLen)
		payload = append(payload, id.datacenter)
	}
	var partition [8]byte
	binary.BigEndian.PutUint64(partition[:], uint64(id.partition))
	payload = append(payload, partition[:]...)
	payload = append(payload, id.entropy[:]...)
	return base58.CheckEncode(payload, id.version)
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

// Parse decodes a blob id string. Any failure, bad checksum, unsupported
// version or wrong payload size, is an ErrInvalidID.
func Parse(s string) (ID, error) {
	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		return ID{}, ErrInvalidID.New("undecodable %q: %v", s, err)
	}

	id := ID{
		version:     version,
		accountID:   UnknownAccountID,
		containerID: UnknownContainerID,
	}
	switch version {
	case Version1:
		if len(payload) != v1PayloadLen {
			return ID{}, ErrInvalidID.New("v1 payload has %d bytes", len(payload))
		}
		id.datacenter = payload[0]
		id.partition = clustermap.PartitionID(binary.BigEndian.Uint64(payload[1:9]))
		copy(id.entropy[:], payload[9:])
	case Version2:
		if len(payload) != v2PayloadLen {
			return ID{}, ErrInvalidID.New("v2 payload has %d bytes", len(payload))
		}
		id.datacenter = payload[0]
		id.accountID = int16(binary.BigEndian.Uint16(payload[1:3]))
		id.containerID = int16(binary.BigEndian.Uint16(payload[3:5]))
		id.partition = clustermap.PartitionID(binary.BigEndian.Uint64(payload[5:13]))
		copy(id.entropy[:], payload[13:])
	default:
		return ID{}, ErrInvalidID.New("unsupported version %d", version)
	}
	return id, nil
}
