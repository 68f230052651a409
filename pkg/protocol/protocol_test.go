// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package protocol_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambry.io/ambry/internal/testrand"
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/protocol"
	"ambry.io/ambry/pkg/rest"
)

func testProperties() blob.Properties {
	return blob.Properties{
		Size:         42,
		ServiceID:    "media-service",
		OwnerID:      "owner",
		ContentType:  "image/gif",
		Private:      true,
		TTL:          3 * time.Hour,
		CreationTime: time.Date(2019, 7, 20, 16, 17, 0, 0, time.UTC),
		AccountID:    testrand.AccountID(),
		ContainerID:  testrand.ContainerID(),
	}
}

func TestPutRequestRoundTrip(t *testing.T) {
	in := protocol.NewPutRequest(7, "frontend-1", &protocol.PutRequest{
		BlobID:       "blob-under-test",
		Properties:   testProperties(),
		UserMetadata: testrand.Bytes(64),
		Blob:         testrand.Bytes(1024),
	})

	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out protocol.Request
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, in.Put, out.Put)
	assert.Nil(t, out.Get)
	assert.Nil(t, out.Delete)
}

func TestPutRequestInfiniteTTL(t *testing.T) {
	props := testProperties()
	props.TTL = blob.TTLInfinite

	in := protocol.NewPutRequest(1, "frontend-1", &protocol.PutRequest{
		BlobID:     "blob-under-test",
		Properties: props,
		Blob:       testrand.Bytes(16),
	})

	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out protocol.Request
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, blob.TTLInfinite, out.Put.Properties.TTL)
}

func TestGetRequestRoundTrip(t *testing.T) {
	for i, tt := range []struct {
		flags   protocol.GetFlags
		options rest.GetOption
	}{
		{protocol.GetAll, rest.GetOptionNone},
		{protocol.GetBlobInfo, rest.GetOptionIncludeDeletedBlobs},
		{protocol.FlagBlob, rest.GetOptionIncludeAll},
		{protocol.FlagUserMetadata, rest.GetOptionIncludeExpiredBlobs},
	} {
		tag := fmt.Sprintf("#%d. %+v", i, tt)

		in := protocol.NewGetRequest(int32(i), "frontend-1", &protocol.GetRequest{
			BlobID:  "blob-under-test",
			Flags:   tt.flags,
			Options: tt.options,
		})

		data, err := in.MarshalBinary()
		require.NoError(t, err, tag)

		var out protocol.Request
		require.NoError(t, out.UnmarshalBinary(data), tag)
		assert.Equal(t, in.Get, out.Get, tag)
	}
}

func TestDeleteRequestRoundTrip(t *testing.T) {
	in := protocol.NewDeleteRequest(9, "frontend-2", &protocol.DeleteRequest{
		BlobID:       "blob-under-test",
		DeletionTime: 1563639420000,
	})

	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out protocol.Request
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, in.Delete, out.Delete)
}

func TestResponseRoundTrip(t *testing.T) {
	props := testProperties()

	for i, tt := range []struct {
		resp *protocol.Response
	}{
		{ // put echo
			resp: &protocol.Response{
				Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypePut, CorrelationID: 3, ClientID: "c"},
				Error:  protocol.NoError,
				BlobID: "minted-id",
			},
		},
		{ // full get payload
			resp: &protocol.Response{
				Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypeGet, CorrelationID: 4, ClientID: "c"},
				Error:  protocol.NoError,
				Get: &protocol.GetResponse{
					Properties:   &props,
					UserMetadata: testrand.Bytes(32),
					Blob:         testrand.Bytes(128),
				},
			},
		},
		{ // info-only get payload
			resp: &protocol.Response{
				Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypeGet, CorrelationID: 5, ClientID: "c"},
				Error:  protocol.NoError,
				Get: &protocol.GetResponse{
					Properties:   &props,
					UserMetadata: []byte{},
				},
			},
		},
		{ // failed get has no payload
			resp: &protocol.Response{
				Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypeGet, CorrelationID: 6, ClientID: "c"},
				Error:  protocol.BlobNotFound,
			},
		},
		{ // delete carries only the status
			resp: &protocol.Response{
				Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypeDelete, CorrelationID: 7, ClientID: "c"},
				Error:  protocol.BlobDeleted,
			},
		},
	} {
		tag := fmt.Sprintf("#%d. %+v", i, tt)

		data, err := tt.resp.MarshalBinary()
		require.NoError(t, err, tag)

		var out protocol.Response
		require.NoError(t, out.UnmarshalBinary(data), tag)
		assert.Equal(t, tt.resp, &out, tag)
	}
}

func TestDecodeFaults(t *testing.T) {
	valid, err := protocol.NewDeleteRequest(11, "frontend-1", &protocol.DeleteRequest{
		BlobID:       "blob-under-test",
		DeletionTime: 1563639420000,
	}).MarshalBinary()
	require.NoError(t, err)

	// truncation at every boundary faults
	for cut := 0; cut < len(valid); cut++ {
		var out protocol.Request
		err := out.UnmarshalBinary(valid[:cut])
		assert.True(t, protocol.Error.Has(err), fmt.Sprintf("cut at %d", cut))
	}

	// trailing garbage faults
	var out protocol.Request
	err = out.UnmarshalBinary(append(append([]byte{}, valid...), 0xff))
	require.True(t, protocol.Error.Has(err))

	// unknown request type faults
	bad := append([]byte{}, valid...)
	bad[3] = 9
	err = out.UnmarshalBinary(bad)
	require.True(t, protocol.Error.Has(err))
	assert.Contains(t, err.Error(), "unknown request type")

	// unsupported version faults
	bad = append([]byte{}, valid...)
	bad[1] = 2
	err = out.UnmarshalBinary(bad)
	require.True(t, protocol.Error.Has(err))
	assert.Contains(t, err.Error(), "unsupported version")

	// marshalling a mismatched envelope faults
	_, err = (&protocol.Request{
		Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypePut},
	}).MarshalBinary()
	require.True(t, protocol.Error.Has(err))
}

func TestResponseDecodeFaults(t *testing.T) {
	props := testProperties()
	valid, err := (&protocol.Response{
		Header: protocol.Header{Version: protocol.CurrentVersion, Type: protocol.TypeGet, CorrelationID: 8, ClientID: "c"},
		Error:  protocol.NoError,
		Get:    &protocol.GetResponse{Properties: &props, Blob: testrand.Bytes(64)},
	}).MarshalBinary()
	require.NoError(t, err)

	for _, cut := range []int{1, 8, len(valid) / 2, len(valid) - 1} {
		var out protocol.Response
		err := out.UnmarshalBinary(valid[:cut])
		assert.True(t, protocol.Error.Has(err), fmt.Sprintf("cut at %d", cut))
	}
}
