// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambry.io/ambry/internal/testrand"
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
)

func TestPostBlob(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	data := testrand.Bytes(512)
	args := postArgs("upload-service", "image/png")
	args[rest.UserMetadataPrefix+"origin"] = "unit"
	location, resp := env.post(args, data)

	id, err := blob.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, testDatacenterID, id.Datacenter())
	assert.Equal(t, testPartitionID, id.Partition())

	assert.NotNil(t, resp.Header(rest.DateHeader))
	assert.NotNil(t, resp.Header(rest.CreationTimeHeader))
	assert.Equal(t, "0", resp.Header(rest.ContentLengthHeader))
	assert.Empty(t, resp.Body())
	assert.Equal(t, 1, resp.Completions())
	assert.NoError(t, resp.CompletionError())

	stored, ok := env.router.stored(location)
	require.True(t, ok)
	assert.Equal(t, data, stored.data)
	assert.Equal(t, rest.EncodeUserMetadata(args), stored.um)
	assert.Equal(t, "upload-service", stored.props.ServiceID)
	assert.Equal(t, "image/png", stored.props.ContentType)
	assert.Equal(t, "upload-service", stored.props.OwnerID, "owner defaults to the service id")
	assert.Equal(t, blob.TTLInfinite, stored.props.TTL)
	assert.False(t, stored.props.Private)
	assert.Equal(t, int64(512), stored.props.Size)
	assert.WithinDuration(t, time.Now(), stored.props.CreationTime, time.Minute)
	assert.Equal(t, rest.FormatDate(stored.props.CreationTime), resp.Header(rest.CreationTimeHeader))
}

func TestPostOwnerAndTTL(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	args := postArgs("upload-service", "text/plain")
	args[rest.OwnerIDHeader] = "owner-9"
	args[rest.TTLHeader] = "3600"
	location, _ := env.post(args, []byte("expiring"))
	stored, ok := env.router.stored(location)
	require.True(t, ok)
	assert.Equal(t, "owner-9", stored.props.OwnerID)
	assert.Equal(t, time.Hour, stored.props.TTL)

	args = postArgs("upload-service", "text/plain")
	args[rest.TTLHeader] = "-1"
	location, _ = env.post(args, []byte("permanent"))
	stored, ok = env.router.stored(location)
	require.True(t, ok)
	assert.Equal(t, blob.TTLInfinite, stored.props.TTL)
}

func TestPostHeaderValidation(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	for _, tt := range []struct {
		name   string
		mutate func(args map[string]interface{})
		code   rest.ErrorCode
	}{
		{"missing service id", func(args map[string]interface{}) {
			delete(args, rest.ServiceIDHeader)
		}, rest.MissingArgs},
		{"missing content type", func(args map[string]interface{}) {
			delete(args, rest.ContentTypeHeader)
		}, rest.MissingArgs},
		{"ttl not a number", func(args map[string]interface{}) {
			args[rest.TTLHeader] = "soon"
		}, rest.InvalidArgument},
		{"negative ttl", func(args map[string]interface{}) {
			args[rest.TTLHeader] = "-5"
		}, rest.InvalidArgument},
		{"private not a bool", func(args map[string]interface{}) {
			args[rest.PrivateHeader] = "maybe"
		}, rest.InvalidArgument},
		{"size not a number", func(args map[string]interface{}) {
			args[rest.BlobSizeHeader] = "big"
		}, rest.InvalidArgument},
		{"negative size", func(args map[string]interface{}) {
			args[rest.BlobSizeHeader] = "-3"
		}, rest.InvalidArgument},
	} {
		t.Run(tt.name, func(t *testing.T) {
			args := postArgs("upload-service", "text/plain")
			tt.mutate(args)
			resp := env.request(rest.MethodPost, "/", args, []byte("payload"))
			assertErrorCode(t, resp, rest.StatusBadRequest, tt.code)
		})
	}
	assert.Zero(t, env.router.puts, "rejected uploads never reach the router")
}

func TestPostEmptyBody(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	location, _ := env.post(postArgs("upload-service", "text/plain"), []byte{})
	stored, ok := env.router.stored(location)
	require.True(t, ok)
	assert.Zero(t, stored.props.Size)

	resp := env.request(rest.MethodGet, "/"+location, nil, nil)
	require.Equal(t, rest.StatusOK, resp.Status())
	assert.Empty(t, resp.Body())
	assert.Equal(t, "0", resp.Header(rest.ContentLengthHeader))
}
