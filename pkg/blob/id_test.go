// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package blob_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambry.io/ambry/internal/testrand"
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/clustermap"
)

func TestIDRoundTripV1(t *testing.T) {
	partition := clustermap.PartitionID(testrand.PartitionID())
	id := blob.NewV1(3, partition)

	assert.Equal(t, blob.Version1, id.Version())
	assert.Equal(t, blob.UnknownAccountID, id.AccountID())
	assert.Equal(t, blob.UnknownContainerID, id.ContainerID())

	parsed, err := blob.Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, uint8(3), parsed.Datacenter())
	assert.Equal(t, partition, parsed.Partition())
}

func TestIDRoundTripV2(t *testing.T) {
	accountID := testrand.AccountID()
	containerID := testrand.ContainerID()
	partition := clustermap.PartitionID(testrand.PartitionID())

	id := blob.NewV2(7, accountID, containerID, partition)
	assert.Equal(t, blob.Version2, id.Version())

	parsed, err := blob.Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, accountID, parsed.AccountID())
	assert.Equal(t, containerID, parsed.ContainerID())
	assert.Equal(t, partition, parsed.Partition())

	// two mints on the same partition differ by entropy
	other := blob.NewV2(7, accountID, containerID, partition)
	assert.NotEqual(t, id.String(), other.String())
}

func TestParseInvalid(t *testing.T) {
	valid := blob.NewV2(1, 10, 11, 12).String()

	for i, tt := range []string{
		"",
		"not base58 at all!!",
		valid[:len(valid)-2],          // truncated, checksum broken
		valid + "a",                   // trailing garbage, checksum broken
		corrupt(valid),                // one character flipped
		reversion(t, valid, byte(3)),  // unsupported version
		reversion(t, valid, byte(1)),  // v1 with a v2-sized payload
	} {
		tag := fmt.Sprintf("#%d. %q", i, tt)
		_, err := blob.Parse(tt)
		require.Error(t, err, tag)
		assert.True(t, blob.ErrInvalidID.Has(err), tag)
	}
}

// corrupt flips one character of a base58 string to another valid one.
func corrupt(s string) string {
	b := []byte(s)
	i := len(b) / 2
	if b[i] == '2' {
		b[i] = '3'
	} else {
		b[i] = '2'
	}
	return string(b)
}

// reversion re-encodes the payload of a valid id under another version byte.
func reversion(t *testing.T, s string, version byte) string {
	t.Helper()
	payload, _, err := base58.CheckDecode(s)
	require.NoError(t, err)
	return base58.CheckEncode(payload, version)
}

func TestPropertiesExpiry(t *testing.T) {
	now := time.Now()

	infinite := blob.Properties{TTL: blob.TTLInfinite, CreationTime: now}
	assert.False(t, infinite.Expired(now.Add(100*365*24*time.Hour)))

	short := blob.Properties{TTL: time.Second, CreationTime: now}
	assert.False(t, short.Expired(now))
	assert.False(t, short.Expired(now.Add(time.Second)))
	assert.True(t, short.Expired(now.Add(2*time.Second)))
}
