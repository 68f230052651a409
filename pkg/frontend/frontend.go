// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package frontend implements the blob-store REST pipeline: it parses
// blob requests, resolves accounts and containers, runs the security
// gate, dispatches to the router and renders responses. It is written
// against the pkg/rest abstractions so any server layer can drive it.
package frontend

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"ambry.io/ambry/pkg/account"
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/rest"
	"ambry.io/ambry/pkg/router"
)

// Error is the errs class of frontend setup errors. Request failures
// travel as rest.Error values instead.
var Error = errs.Class("frontend error")

var mon = monkit.Package()

// peersOperation is the non-blob GET operation serving datanode peers.
const peersOperation = "peers"

// Service states.
const (
	stateCreated int32 = iota
	stateStarted
	stateStopped
)

// Config holds the frontend settings.
type Config struct {
	// CacheValidity bounds how long proxies may cache public blobs.
	CacheValidity time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.CacheValidity <= 0 {
		cfg.CacheValidity = 365 * 24 * time.Hour
	}
	return cfg
}

// Service is the REST frontend. All handlers deliver exactly one
// terminal response per request through the configured
// rest.ResponseHandler.
type Service struct {
	log       *zap.Logger
	cfg       Config
	router    router.Router
	accounts  account.Directory
	cmap      clustermap.Map
	converter IDConverter
	security  SecurityService
	responses rest.ResponseHandler

	ctx    context.Context
	cancel context.CancelFunc
	state  int32
}

// New creates the frontend. A nil converter or security service is
// replaced with the stock implementation.
func New(log *zap.Logger, cfg Config, rtr router.Router, accounts account.Directory, cmap clustermap.Map, converter IDConverter, security SecurityService, responses rest.ResponseHandler) *Service {
	cfg = cfg.withDefaults()
	if converter == nil {
		converter = NewIDConverter()
	}
	if security == nil {
		security = NewSecurityService(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		log:       log,
		cfg:       cfg,
		router:    rtr,
		accounts:  accounts,
		cmap:      cmap,
		converter: converter,
		security:  security,
		responses: responses,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start readies the service for traffic. Requests handled before Start
// fail with ServiceUnavailable.
func (s *Service) Start() error {
	switch {
	case s.router == nil, s.accounts == nil, s.cmap == nil, s.responses == nil:
		return Error.New("router, account directory, cluster map and response handler are required")
	case !atomic.CompareAndSwapInt32(&s.state, stateCreated, stateStarted):
		return Error.New("frontend already started")
	}
	s.log.Info("frontend started")
	return nil
}

// Shutdown stops accepting new requests. In-flight requests finish
// through their callbacks.
func (s *Service) Shutdown() error {
	if atomic.SwapInt32(&s.state, stateStopped) == stateStarted {
		s.cancel()
		s.log.Info("frontend stopped")
	}
	return nil
}

// Handle routes the request to the handler matching its method.
// Unsupported methods are answered with UnsupportedHttpMethod.
func (s *Service) Handle(req rest.Request, resp rest.ResponseChannel) {
	var method rest.Method
	if req != nil {
		method = req.Method()
	}
	switch method {
	case rest.MethodGet:
		s.HandleGet(req, resp)
	case rest.MethodHead:
		s.HandleHead(req, resp)
	case rest.MethodPost:
		s.HandlePost(req, resp)
	case rest.MethodDelete:
		s.HandleDelete(req, resp)
	default:
		if !s.ready(req, resp) {
			return
		}
		s.submitResponse(req, resp, nil, rest.Errorf(rest.UnsupportedHttpMethod, "%s is not supported", method))
	}
}

// ready runs the entry checks shared by all handlers. When it returns
// false the terminal response has already been arranged.
func (s *Service) ready(req rest.Request, resp rest.ResponseChannel) bool {
	if resp == nil {
		s.log.Error("discarding request without a response channel")
		if req != nil {
			_ = req.Close()
		}
		return false
	}
	if atomic.LoadInt32(&s.state) != stateStarted {
		s.submitResponse(req, resp, nil, rest.NewError(rest.ServiceUnavailable, "frontend is not started"))
		return false
	}
	if req == nil {
		s.submitResponse(nil, resp, nil, rest.NewError(rest.InvalidArgument, "request is nil"))
		return false
	}
	return true
}

// protect runs one pipeline stage. Errors and panics from misbehaving
// collaborators become the terminal response instead of killing the
// calling goroutine.
func (s *Service) protect(req rest.Request, resp rest.ResponseChannel, stage func() error) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("pipeline stage panicked", zap.Any("panic", rec))
				err = rest.Errorf(rest.InternalError, "unexpected failure: %v", rec)
			}
		}()
		return stage()
	}()
	if err != nil {
		s.submitResponse(req, resp, nil, err)
	}
}

// submitResponse delivers the terminal outcome for a request. On error
// the status and x-ambry-error-code header are derived from the error
// and any body is discarded. When the response handler rejects the
// hand-off the channel is completed directly so the client still hears
// the original outcome.
func (s *Service) submitResponse(req rest.Request, resp rest.ResponseChannel, body io.ReadCloser, outcome error) {
	if outcome != nil {
		mon.Meter("failed_requests").Mark(1)
		code := rest.CodeOf(outcome)
		if code == rest.UnknownErrorCode {
			code = rest.InternalError
		}
		if err := resp.SetHeader(rest.ErrorCodeHeader, code.String()); err != nil {
			s.log.Debug("setting error code header", zap.Error(err))
		}
		if err := resp.SetStatus(code.Status()); err != nil {
			s.log.Debug("setting error status", zap.Error(err))
		}
		if body != nil {
			_ = body.Close()
			body = nil
		}
	}

	if err := s.responses.HandleResponse(req, resp, body, outcome); err != nil {
		s.log.Warn("response handler rejected the response", zap.Error(err))
		if outcome == nil {
			outcome = rest.WrapError(rest.RequestResponseQueuingFailure, err)
		}
		resp.OnResponseComplete(outcome)
		if body != nil {
			if cerr := body.Close(); cerr != nil {
				s.log.Debug("closing response body", zap.Error(cerr))
			}
		}
	}

	if req != nil {
		if cerr := req.Close(); cerr != nil {
			s.log.Debug("closing request", zap.Error(cerr))
		}
	}
}

// mapRouterError translates a router failure into the pipeline
// taxonomy. Deleted blobs additionally mark GET and HEAD responses with
// the x-ambry-deleted header.
func (s *Service) mapRouterError(method rest.Method, resp rest.ResponseChannel, err error) error {
	switch router.CodeOf(err) {
	case router.BlobDoesNotExist:
		return rest.WrapError(rest.NotFound, err)
	case router.BlobDeleted:
		if method == rest.MethodGet || method == rest.MethodHead {
			if hdrErr := resp.SetHeader(rest.DeletedHeader, "true"); hdrErr != nil {
				s.log.Debug("setting deleted header", zap.Error(hdrErr))
			}
		}
		return rest.WrapError(rest.Gone, err)
	case router.BlobExpired:
		return rest.WrapError(rest.Gone, err)
	case router.BlobAuthorizationFailure:
		return rest.WrapError(rest.Unauthorized, err)
	case router.InvalidBlobID:
		return rest.WrapError(rest.BadRequest, err)
	case router.OperationTimedOut, router.AmbryUnavailable, router.RouterClosed:
		return rest.WrapError(rest.ServiceUnavailable, err)
	}
	return rest.WrapError(rest.InternalError, err)
}

// blobRef is a blob URI path split into the blob id and the optional
// trailing sub-resource.
type blobRef struct {
	blobID string
	sub    rest.SubResource
	hasSub bool
}

func parseBlobPath(path string) blobRef {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		if sub, ok := rest.ParseSubResource(trimmed[i+1:]); ok {
			return blobRef{blobID: trimmed[:i], sub: sub, hasSub: true}
		}
	}
	return blobRef{blobID: trimmed}
}

func setHeader(resp rest.ResponseChannel, name string, value interface{}) error {
	if err := resp.SetHeader(name, value); err != nil {
		return rest.WrapError(rest.InternalError, err)
	}
	return nil
}

// setBlobPropertiesHeaders renders the stored blob properties as
// response headers. The ttl header is only present for finite ttls.
func setBlobPropertiesHeaders(resp rest.ResponseChannel, props *blob.Properties) error {
	if err := setHeader(resp, rest.BlobSizeHeader, strconv.FormatInt(props.Size, 10)); err != nil {
		return err
	}
	if err := setHeader(resp, rest.ServiceIDHeader, props.ServiceID); err != nil {
		return err
	}
	if err := setHeader(resp, rest.CreationTimeHeader, rest.FormatDate(props.CreationTime)); err != nil {
		return err
	}
	if err := setHeader(resp, rest.PrivateHeader, strconv.FormatBool(props.Private)); err != nil {
		return err
	}
	if props.ContentType != "" {
		if err := setHeader(resp, rest.ContentTypeHeader, props.ContentType); err != nil {
			return err
		}
	}
	if props.TTL != blob.TTLInfinite {
		if err := setHeader(resp, rest.TTLHeader, strconv.FormatInt(int64(props.TTL/time.Second), 10)); err != nil {
			return err
		}
	}
	if props.OwnerID != "" {
		if err := setHeader(resp, rest.OwnerIDHeader, props.OwnerID); err != nil {
			return err
		}
	}
	return nil
}

// setUserMetadataHeaders renders user metadata as x-ambry-um-* headers.
// The bool reports whether the stored bytes were in header form; legacy
// raw metadata is left to the caller.
func setUserMetadataHeaders(resp rest.ResponseChannel, data []byte) (bool, error) {
	metadata, ok := rest.DecodeUserMetadata(data)
	if !ok {
		return false, nil
	}
	for name, value := range metadata {
		if err := setHeader(resp, name, value); err != nil {
			return true, err
		}
	}
	return true, nil
}
