// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
)

func TestDeleteBlob(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	blobID, _ := env.post(postArgs("upload-service", "text/plain"), []byte("doomed"))

	resp := env.request(rest.MethodDelete, "/"+blobID, nil, nil)
	require.Equal(t, rest.StatusAccepted, resp.Status(), "unexpected failure: %v", resp.CompletionError())
	assert.NotNil(t, resp.Header(rest.DateHeader))
	assert.Equal(t, "0", resp.Header(rest.ContentLengthHeader))
	assert.Empty(t, resp.Body())
	assert.Equal(t, 1, resp.Completions())
	assert.NoError(t, resp.CompletionError())

	resp = env.request(rest.MethodGet, "/"+blobID, nil, nil)
	assertErrorCode(t, resp, rest.StatusGone, rest.Gone)
	assert.Equal(t, "true", resp.Header(rest.DeletedHeader))

	// deleting twice is not an error
	resp = env.request(rest.MethodDelete, "/"+blobID, nil, nil)
	require.Equal(t, rest.StatusAccepted, resp.Status())
	assert.NoError(t, resp.CompletionError())

	resp = env.request(rest.MethodGet, "/"+blobID, map[string]interface{}{
		rest.GetOptionHeader: "Include_Deleted_Blobs",
	}, nil)
	require.Equal(t, rest.StatusOK, resp.Status())
	assert.Equal(t, []byte("doomed"), resp.Body())
}

func TestDeleteServiceID(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	blobID, _ := env.post(postArgs("upload-service", "text/plain"), []byte("one"))
	resp := env.request(rest.MethodDelete, "/"+blobID, map[string]interface{}{
		rest.ServiceIDHeader: "janitor-service",
	}, nil)
	require.Equal(t, rest.StatusAccepted, resp.Status())
	assert.Equal(t, "janitor-service", env.router.deleteServiceID)

	blobID, _ = env.post(postArgs("upload-service", "text/plain"), []byte("two"))
	resp = env.request(rest.MethodDelete, "/"+blobID, nil, nil)
	require.Equal(t, rest.StatusAccepted, resp.Status())
	assert.Empty(t, env.router.deleteServiceID)
}

func TestDeleteMissing(t *testing.T) {
	env := newEnv(t)
	defer env.close()

	unstored := blob.NewV2(testDatacenterID, 100, 5, testPartitionID).String()
	resp := env.request(rest.MethodDelete, "/"+unstored, nil, nil)
	assertErrorCode(t, resp, rest.StatusNotFound, rest.NotFound)

	deletesBefore := env.router.deletes
	resp = env.request(rest.MethodDelete, "/not-a-blob-id", nil, nil)
	assertErrorCode(t, resp, rest.StatusBadRequest, rest.BadRequest)
	assert.Equal(t, deletesBefore, env.router.deletes)
}
