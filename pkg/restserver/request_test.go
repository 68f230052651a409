// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package restserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambry.io/ambry/pkg/rest"
)

func TestRequestAdapter(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://frontend/some-blob/BlobInfo?x-ambry-get-option=Include_All&first=a&first=b", strings.NewReader("payload"))
	r.Header.Set("X-Ambry-Service-Id", "upload-service")
	r.Header.Set("Content-Type", "application/octet-stream")

	req := newRequest(r)
	assert.Equal(t, rest.MethodPost, req.Method())
	assert.Equal(t, "/some-blob/BlobInfo", req.Path())
	assert.Equal(t, "/some-blob/BlobInfo?x-ambry-get-option=Include_All&first=a&first=b", req.URI())

	args := req.Args()
	assert.Equal(t, "upload-service", args[rest.ServiceIDHeader], "header names are lower-cased")
	assert.Equal(t, "application/octet-stream", args["content-type"])
	assert.Equal(t, "Include_All", args[rest.GetOptionHeader], "query parameters merge into the args")
	assert.Equal(t, "a", args["first"], "the first query value wins")

	assert.True(t, req.IsOpen())
	require.NoError(t, req.Close())
	assert.False(t, req.IsOpen())
	require.NoError(t, req.Close(), "closing twice is not an error")
}

func TestRequestMethods(t *testing.T) {
	for name, method := range map[string]rest.Method{
		"GET":     rest.MethodGet,
		"HEAD":    rest.MethodHead,
		"POST":    rest.MethodPost,
		"DELETE":  rest.MethodDelete,
		"PUT":     rest.MethodPut,
		"OPTIONS": rest.MethodOptions,
	} {
		r := httptest.NewRequest(name, "http://frontend/", nil)
		assert.Equal(t, method, newRequest(r).Method(), name)
	}
}
