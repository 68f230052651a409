// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
	"ambry.io/ambry/pkg/router"
)

// ProcessCallback receives the outcome of an asynchronous security
// stage.
type ProcessCallback func(err error)

// SecurityService guards requests entering and leaving the pipeline.
// Implementations must invoke each callback exactly once.
type SecurityService interface {
	// ProcessRequest runs before the request is parsed.
	ProcessRequest(ctx context.Context, req rest.Request, cb ProcessCallback)
	// PostProcessRequest runs after accounts and containers are
	// resolved, before the router is invoked.
	PostProcessRequest(ctx context.Context, req rest.Request, cb ProcessCallback)
	// ProcessResponse decorates the response with headers derived from
	// the blob info before the body is handed off.
	ProcessResponse(ctx context.Context, req rest.Request, resp rest.ResponseChannel, info *router.BlobInfo, cb ProcessCallback)
}

// securityService is the stock security service. It has no auth of its
// own; it validates request headers on the way in and renders the
// standard HTTP response headers on the way out.
type securityService struct {
	cacheValidity time.Duration
}

// NewSecurityService returns the stock security service.
func NewSecurityService(cfg Config) SecurityService {
	return &securityService{cacheValidity: cfg.withDefaults().CacheValidity}
}

func (s *securityService) ProcessRequest(ctx context.Context, req rest.Request, cb ProcessCallback) {
	cb(s.validateRequest(req))
}

func (s *securityService) validateRequest(req rest.Request) error {
	if req == nil {
		return rest.NewError(rest.InvalidArgument, "request is nil")
	}
	if !req.IsOpen() {
		return rest.NewError(rest.RequestChannelClosed, "request is closed")
	}
	args := req.Args()
	option, err := rest.GetHeader(args, rest.GetOptionHeader, false)
	if err != nil {
		return err
	}
	if _, err := rest.ParseGetOption(option); err != nil {
		return err
	}
	rangeHeader, err := rest.GetHeader(args, rest.RangeHeader, false)
	if err != nil {
		return err
	}
	if rangeHeader != "" {
		if _, err := rest.ParseRange(rangeHeader); err != nil {
			return err
		}
	}
	return nil
}

func (s *securityService) PostProcessRequest(ctx context.Context, req rest.Request, cb ProcessCallback) {
	switch {
	case req == nil:
		cb(rest.NewError(rest.InvalidArgument, "request is nil"))
	case !req.IsOpen():
		cb(rest.NewError(rest.RequestChannelClosed, "request is closed"))
	default:
		cb(nil)
	}
}

func (s *securityService) ProcessResponse(ctx context.Context, req rest.Request, resp rest.ResponseChannel, info *router.BlobInfo, cb ProcessCallback) {
	cb(s.decorateResponse(req, resp, info))
}

func (s *securityService) decorateResponse(req rest.Request, resp rest.ResponseChannel, info *router.BlobInfo) error {
	if req == nil || resp == nil {
		return rest.NewError(rest.InvalidArgument, "request and response channel are required")
	}
	if err := setHeader(resp, rest.DateHeader, rest.FormatDate(time.Now())); err != nil {
		return err
	}
	switch req.Method() {
	case rest.MethodPost:
		return nil
	case rest.MethodGet, rest.MethodHead:
		if info == nil {
			return rest.NewError(rest.InternalError, "blob info is required")
		}
		if err := setHeader(resp, rest.LastModifiedHeader, rest.FormatDate(info.Properties.CreationTime)); err != nil {
			return err
		}
		if req.Method() == rest.MethodHead {
			return s.decorateHead(req, resp, info)
		}
		if parseBlobPath(req.Path()).hasSub {
			// sub-resource views are rendered by the get handler
			return nil
		}
		return s.decorateGetData(req, resp, info)
	}
	return nil
}

// decorateGetData renders the headers of a whole-blob GET. An
// If-Modified-Since hit short-circuits to 304 with no entity headers.
func (s *securityService) decorateGetData(req rest.Request, resp rest.ResponseChannel, info *router.BlobInfo) error {
	props := &info.Properties
	if since, ok := ifModifiedSince(req); ok && !props.CreationTime.Truncate(time.Second).After(since) {
		if err := resp.SetStatus(rest.StatusNotModified); err != nil {
			return rest.WrapError(rest.InternalError, err)
		}
		return nil
	}
	if err := setHeader(resp, rest.BlobSizeHeader, strconv.FormatInt(props.Size, 10)); err != nil {
		return err
	}
	if props.ContentType != "" {
		if err := setHeader(resp, rest.HTTPContentType, props.ContentType); err != nil {
			return err
		}
	}
	if err := setHeader(resp, rest.AcceptRangesHeader, "bytes"); err != nil {
		return err
	}
	if err := s.setCacheHeaders(resp, props); err != nil {
		return err
	}
	if _, err := setUserMetadataHeaders(resp, info.UserMetadata); err != nil {
		return err
	}
	return setContentRangeHeaders(req, resp, props.Size)
}

// decorateHead renders the headers of a HEAD. The shape matches GET
// plus the full blob property set, without cache headers or a body.
func (s *securityService) decorateHead(req rest.Request, resp rest.ResponseChannel, info *router.BlobInfo) error {
	props := &info.Properties
	if err := setBlobPropertiesHeaders(resp, props); err != nil {
		return err
	}
	if props.ContentType != "" {
		if err := setHeader(resp, rest.HTTPContentType, props.ContentType); err != nil {
			return err
		}
	}
	if err := setHeader(resp, rest.AcceptRangesHeader, "bytes"); err != nil {
		return err
	}
	if _, err := setUserMetadataHeaders(resp, info.UserMetadata); err != nil {
		return err
	}
	return setContentRangeHeaders(req, resp, props.Size)
}

// setCacheHeaders marks private blobs uncacheable and grants public
// blobs the configured cache validity.
func (s *securityService) setCacheHeaders(resp rest.ResponseChannel, props *blob.Properties) error {
	if props.Private {
		if err := setHeader(resp, rest.CacheControlHeader, "private, no-cache, no-store"); err != nil {
			return err
		}
		return setHeader(resp, rest.PragmaHeader, "no-cache")
	}
	if err := setHeader(resp, rest.CacheControlHeader, fmt.Sprintf("max-age=%d", int64(s.cacheValidity/time.Second))); err != nil {
		return err
	}
	return setHeader(resp, rest.ExpiresHeader, rest.FormatDate(time.Now().Add(s.cacheValidity)))
}

// setContentRangeHeaders resolves any range header against the blob
// size and sets Content-Length, and Content-Range plus the 206 status
// for ranged requests.
func setContentRangeHeaders(req rest.Request, resp rest.ResponseChannel, size int64) error {
	rangeHeader, err := rest.GetHeader(req.Args(), rest.RangeHeader, false)
	if err != nil {
		return err
	}
	if rangeHeader == "" {
		return setHeader(resp, rest.ContentLengthHeader, strconv.FormatInt(size, 10))
	}
	rng, err := rest.ParseRange(rangeHeader)
	if err != nil {
		return err
	}
	offset, length, err := rng.Resolve(size)
	if err != nil {
		return err
	}
	if err := setHeader(resp, rest.ContentRangeHeader, rest.ContentRange(offset, length, size)); err != nil {
		return err
	}
	if err := setHeader(resp, rest.ContentLengthHeader, strconv.FormatInt(length, 10)); err != nil {
		return err
	}
	if err := resp.SetStatus(rest.StatusPartialContent); err != nil {
		return rest.WrapError(rest.InternalError, err)
	}
	return nil
}

func ifModifiedSince(req rest.Request) (time.Time, bool) {
	value, err := rest.GetHeader(req.Args(), rest.IfModifiedSinceHeader, false)
	if err != nil || value == "" {
		return time.Time{}, false
	}
	since, err := rest.ParseDate(value)
	if err != nil {
		return time.Time{}, false
	}
	return since, true
}
