// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package restserver_test

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"ambry.io/ambry/internal/testrest"
	"ambry.io/ambry/pkg/account"
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/frontend"
	"ambry.io/ambry/pkg/ranger"
	"ambry.io/ambry/pkg/rest"
	"ambry.io/ambry/pkg/restserver"
	"ambry.io/ambry/pkg/router"
)

// mapRouter is a minimal in-memory router.Router speaking the real
// error codes, just enough to drive the pipeline over HTTP.
type mapRouter struct {
	mu    sync.Mutex
	cmap  clustermap.Map
	blobs map[string]*mapBlob
}

type mapBlob struct {
	props   blob.Properties
	um      []byte
	data    []byte
	deleted bool
}

func newMapRouter(cmap clustermap.Map) *mapRouter {
	return &mapRouter{cmap: cmap, blobs: make(map[string]*mapBlob)}
}

func (r *mapRouter) PutBlob(ctx context.Context, props *blob.Properties, userMetadata []byte, body io.Reader, cb router.PutCallback) {
	data, err := ioutil.ReadAll(body)
	if err != nil {
		cb("", &router.OpError{Code: router.BadInputChannel, Msg: "reading blob body", Cause: err})
		return
	}
	stored := *props
	stored.Size = int64(len(data))
	if stored.CreationTime.IsZero() {
		stored.CreationTime = time.Now()
	}
	id := blob.NewV1(r.cmap.DatacenterID(), r.cmap.WritablePartitions()[0].ID()).String()

	r.mu.Lock()
	r.blobs[id] = &mapBlob{props: stored, um: userMetadata, data: data}
	r.mu.Unlock()
	cb(id, nil)
}

func (r *mapRouter) GetBlob(ctx context.Context, blobID string, opts router.GetBlobOptions, cb router.GetCallback) {
	if _, err := blob.Parse(blobID); err != nil {
		cb(nil, &router.OpError{Code: router.InvalidBlobID, Msg: "malformed blob id", Cause: err})
		return
	}
	r.mu.Lock()
	stored, ok := r.blobs[blobID]
	var snapshot mapBlob
	if ok {
		snapshot = *stored
	}
	r.mu.Unlock()
	switch {
	case !ok:
		cb(nil, router.NewOpError(router.BlobDoesNotExist, "no such blob"))
		return
	case snapshot.deleted && !opts.Option.IncludesDeleted():
		cb(nil, router.NewOpError(router.BlobDeleted, "blob is deleted"))
		return
	}
	result := &router.GetBlobResult{
		Info: router.BlobInfo{Properties: snapshot.props, UserMetadata: snapshot.um},
	}
	if opts.Type != router.GetBlobInfo {
		data := snapshot.data
		if opts.Range != nil {
			if offset, length, rerr := opts.Range.Resolve(int64(len(data))); rerr == nil {
				data = data[offset : offset+length]
			}
		}
		result.Body = ranger.ByteRanger(data)
	}
	cb(result, nil)
}

func (r *mapRouter) DeleteBlob(ctx context.Context, blobID string, serviceID string, cb router.DeleteCallback) {
	if _, err := blob.Parse(blobID); err != nil {
		cb(&router.OpError{Code: router.InvalidBlobID, Msg: "malformed blob id", Cause: err})
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.blobs[blobID]
	if !ok {
		cb(router.NewOpError(router.BlobDoesNotExist, "no such blob"))
		return
	}
	stored.deleted = true
	cb(nil)
}

func (r *mapRouter) Close() error { return nil }

// serverEnv runs the full stack on a loopback listener: HTTP server,
// pipeline, async response handler and the in-memory router.
type serverEnv struct {
	t      *testing.T
	base   string
	client *http.Client
	router *mapRouter

	cancel    context.CancelFunc
	group     errgroup.Group
	service   *frontend.Service
	responses *restserver.AsyncResponseHandler
}

func startServer(t *testing.T) *serverEnv {
	log := zaptest.NewLogger(t)
	cmap, err := clustermap.New(clustermap.Layout{
		Datacenter:   "dc-test",
		DatacenterID: 1,
		Nodes: []clustermap.NodeSpec{
			{Hostname: "ambry-1.example.com", Port: 1180, Datacenter: "dc-test"},
		},
		Partitions: []clustermap.PartitionSpec{
			{ID: 3, Writable: true, Replicas: []string{"ambry-1.example.com:1180"}},
		},
	})
	require.NoError(t, err)

	e := &serverEnv{t: t, client: &http.Client{}, router: newMapRouter(cmap)}

	e.responses = restserver.NewAsyncResponseHandler(log, 2, 64)
	require.NoError(t, e.responses.Start())

	e.service = frontend.New(log, frontend.Config{}, e.router, account.NewInMemory(), cmap, nil, nil, e.responses)
	require.NoError(t, e.service.Start())

	server, err := restserver.New(log, restserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, e.service)
	require.NoError(t, err)
	e.base = "http://" + server.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group.Go(func() error { return server.Run(ctx) })
	return e
}

func (e *serverEnv) close() {
	e.cancel()
	assert.NoError(e.t, e.group.Wait())
	assert.NoError(e.t, e.service.Shutdown())
	e.responses.Shutdown()
}

func (e *serverEnv) request(method, path string, headers map[string]string, body io.Reader) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(method, e.base+path, body)
	require.NoError(e.t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := e.client.Do(req)
	require.NoError(e.t, err)
	return resp
}

func (e *serverEnv) post(t *testing.T, data []byte, headers map[string]string) string {
	t.Helper()
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers[rest.ServiceIDHeader]; !ok {
		headers[rest.ServiceIDHeader] = "upload-service"
	}
	if _, ok := headers[rest.ContentTypeHeader]; !ok {
		headers[rest.ContentTypeHeader] = "application/octet-stream"
	}
	resp := e.request(http.MethodPost, "/", headers, bytes.NewReader(data))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get(rest.LocationHeader)
	require.NotEmpty(t, location)
	drain(t, resp)
	return location
}

func drain(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return data
}

func TestServerBlobLifecycle(t *testing.T) {
	e := startServer(t)
	defer e.close()

	payload := bytes.Repeat([]byte("ambry"), 200)
	resp := e.request(http.MethodPost, "/", map[string]string{
		rest.ServiceIDHeader:               "upload-service",
		rest.ContentTypeHeader:             "text/plain",
		rest.UserMetadataPrefix + "origin": "unit",
	}, bytes.NewReader(payload))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get(rest.LocationHeader)
	require.NotEmpty(t, location)
	assert.NotEmpty(t, resp.Header.Get(rest.CreationTimeHeader))
	assert.Empty(t, drain(t, resp))

	resp = e.request(http.MethodGet, "/"+location, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get(rest.HTTPContentType))
	assert.Equal(t, "1000", resp.Header.Get(rest.BlobSizeHeader))
	assert.Equal(t, "1000", resp.Header.Get(rest.ContentLengthHeader))
	assert.Equal(t, "unit", resp.Header.Get(rest.UserMetadataPrefix+"origin"))
	assert.Equal(t, "bytes", resp.Header.Get(rest.AcceptRangesHeader))
	assert.Equal(t, payload, drain(t, resp))

	resp = e.request(http.MethodHead, "/"+location, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1000", resp.Header.Get(rest.ContentLengthHeader))
	assert.Equal(t, "1000", resp.Header.Get(rest.BlobSizeHeader))
	assert.Empty(t, drain(t, resp))

	resp = e.request(http.MethodDelete, "/"+location, nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, drain(t, resp))

	resp = e.request(http.MethodGet, "/"+location, nil, nil)
	require.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "Gone", resp.Header.Get(rest.ErrorCodeHeader))
	assert.Equal(t, "true", resp.Header.Get(rest.DeletedHeader))
	assert.Empty(t, drain(t, resp))
}

func TestServerRange(t *testing.T) {
	e := startServer(t)
	defer e.close()

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	location := e.post(t, payload, nil)

	resp := e.request(http.MethodGet, "/"+location, map[string]string{"Range": "bytes=10-19"}, nil)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 10-19/256", resp.Header.Get(rest.ContentRangeHeader))
	assert.Equal(t, "10", resp.Header.Get(rest.ContentLengthHeader))
	assert.Equal(t, payload[10:20], drain(t, resp))

	resp = e.request(http.MethodGet, "/"+location, map[string]string{"Range": "bytes=300-"}, nil)
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Equal(t, "RangeNotSatisfiable", resp.Header.Get(rest.ErrorCodeHeader))
	assert.Empty(t, drain(t, resp))
}

func TestServerMethodNotAllowed(t *testing.T) {
	e := startServer(t)
	defer e.close()

	resp := e.request(http.MethodPut, "/some-blob", nil, bytes.NewReader([]byte("x")))
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "UnsupportedHttpMethod", resp.Header.Get(rest.ErrorCodeHeader))
	assert.Empty(t, drain(t, resp))
}

func TestServerErrorCodes(t *testing.T) {
	e := startServer(t)
	defer e.close()

	missing := blob.NewV1(1, clustermap.PartitionID(3)).String()
	resp := e.request(http.MethodGet, "/"+missing, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFound", resp.Header.Get(rest.ErrorCodeHeader))
	drain(t, resp)

	resp = e.request(http.MethodGet, "/not-a-blob-id", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BadRequest", resp.Header.Get(rest.ErrorCodeHeader))
	drain(t, resp)
}

// TestServerQueryArgs exercises the query-into-args merge: the get
// option arrives as a query parameter instead of a header.
func TestServerQueryArgs(t *testing.T) {
	e := startServer(t)
	defer e.close()

	location := e.post(t, []byte("doomed"), nil)
	resp := e.request(http.MethodDelete, "/"+location, nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	drain(t, resp)

	resp = e.request(http.MethodGet, "/"+location, nil, nil)
	require.Equal(t, http.StatusGone, resp.StatusCode)
	drain(t, resp)

	resp = e.request(http.MethodGet, "/"+location+"?"+rest.GetOptionHeader+"=Include_Deleted_Blobs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("doomed"), drain(t, resp))
}

// blockingBody parks the reading worker until released.
type blockingBody struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newBlockingBody() *blockingBody {
	return &blockingBody{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return 0, io.EOF
}

func (b *blockingBody) Close() error { return nil }

func TestAsyncResponseHandler(t *testing.T) {
	h := restserver.NewAsyncResponseHandler(zaptest.NewLogger(t), 1, 1)

	early := testrest.NewResponseChannel()
	err := h.HandleResponse(nil, early, nil, nil)
	require.Error(t, err)
	assert.Equal(t, rest.RequestResponseQueuingFailure, rest.CodeOf(err))
	assert.Zero(t, early.Completions(), "a rejected submission must not touch the channel")

	require.NoError(t, h.Start())
	require.Error(t, h.Start())

	// Park the only worker, fill the single queue slot, then overflow.
	body := newBlockingBody()
	parked := testrest.NewResponseChannel()
	require.NoError(t, h.HandleResponse(nil, parked, body, nil))
	<-body.started

	queued := testrest.NewResponseChannel()
	require.NoError(t, h.HandleResponse(nil, queued, nil, nil))

	rejected := testrest.NewResponseChannel()
	err = h.HandleResponse(nil, rejected, nil, nil)
	require.Error(t, err)
	assert.Equal(t, rest.RequestResponseQueuingFailure, rest.CodeOf(err))
	assert.Zero(t, rejected.Completions())

	close(body.release)
	require.NoError(t, parked.Await(t))
	require.NoError(t, queued.Await(t))
	assert.Equal(t, 1, parked.Completions())
	assert.Equal(t, 1, queued.Completions())

	h.Shutdown()
	err = h.HandleResponse(nil, rejected, nil, nil)
	require.Error(t, err)
	assert.Equal(t, rest.RequestResponseQueuingFailure, rest.CodeOf(err))
}

func TestAsyncResponseHandlerStreams(t *testing.T) {
	h := restserver.NewAsyncResponseHandler(zaptest.NewLogger(t), 2, 16)
	require.NoError(t, h.Start())
	defer h.Shutdown()

	resp := testrest.NewResponseChannel()
	body := ioutil.NopCloser(bytes.NewReader([]byte("streamed")))
	require.NoError(t, h.HandleResponse(nil, resp, body, nil))
	require.NoError(t, resp.Await(t))
	assert.Equal(t, []byte("streamed"), resp.Body())

	// An error outcome skips the body and carries the error through.
	failed := testrest.NewResponseChannel()
	require.NoError(t, h.HandleResponse(nil, failed, ioutil.NopCloser(bytes.NewReader([]byte("unused"))), rest.NewError(rest.NotFound, "no such blob")))
	err := failed.Await(t)
	require.Error(t, err)
	assert.Equal(t, rest.NotFound, rest.CodeOf(err))
	assert.Empty(t, failed.Body())
}
