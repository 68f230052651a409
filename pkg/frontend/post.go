// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend

import (
	"time"

	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
	"ambry.io/ambry/pkg/router"
)

// HandlePost uploads a blob. The request body is the blob data; the
// properties come from the x-ambry-* headers.
func (s *Service) HandlePost(req rest.Request, resp rest.ResponseChannel) {
	mon.Meter("handle_post").Mark(1)
	if !s.ready(req, resp) {
		return
	}
	if hasInternalTargets(req.Args()) {
		s.submitResponse(req, resp, nil, rest.NewError(rest.BadRequest, "request must not carry internal target keys"))
		return
	}
	op := &postOperation{svc: s, req: req, resp: resp}
	s.protect(req, resp, op.start)
}

// postOperation carries one upload through the pipeline.
type postOperation struct {
	svc  *Service
	req  rest.Request
	resp rest.ResponseChannel

	props        *blob.Properties
	userMetadata []byte
}

func (op *postOperation) start() error {
	op.svc.security.ProcessRequest(op.svc.ctx, op.req, op.afterSecurity)
	return nil
}

func (op *postOperation) afterSecurity(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		if err := op.svc.injectTargetsForPost(op.req); err != nil {
			return err
		}
		op.props, err = buildProperties(op.req)
		if err != nil {
			return err
		}
		op.userMetadata = rest.EncodeUserMetadata(op.req.Args())
		op.svc.security.PostProcessRequest(op.svc.ctx, op.req, op.afterPostProcess)
		return nil
	})
}

func (op *postOperation) afterPostProcess(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		op.svc.router.PutBlob(op.svc.ctx, op.props, op.userMetadata, op.req.Body(), op.afterRouter)
		return nil
	})
}

func (op *postOperation) afterRouter(blobID string, err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return op.svc.mapRouterError(rest.MethodPost, op.resp, err)
		}
		op.svc.converter.Convert(op.svc.ctx, op.req, blobID, op.afterConvert)
		return nil
	})
}

func (op *postOperation) afterConvert(converted string, err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			if rest.CodeOf(err) == rest.UnknownErrorCode {
				err = rest.WrapError(rest.InternalError, err)
			}
			return err
		}
		if err := setHeader(op.resp, rest.LocationHeader, converted); err != nil {
			return err
		}
		info := &router.BlobInfo{Properties: *op.props, UserMetadata: op.userMetadata}
		op.svc.security.ProcessResponse(op.svc.ctx, op.req, op.resp, info, op.afterResponseSecurity)
		return nil
	})
}

func (op *postOperation) afterResponseSecurity(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		if err := setHeader(op.resp, rest.CreationTimeHeader, rest.FormatDate(op.props.CreationTime)); err != nil {
			return err
		}
		if err := setHeader(op.resp, rest.ContentLengthHeader, "0"); err != nil {
			return err
		}
		if err := op.resp.SetStatus(rest.StatusCreated); err != nil {
			return rest.WrapError(rest.InternalError, err)
		}
		op.svc.submitResponse(op.req, op.resp, nil, nil)
		return nil
	})
}

// buildProperties assembles the stored blob properties from the upload
// headers and the injected account and container.
func buildProperties(req rest.Request) (*blob.Properties, error) {
	args := req.Args()
	serviceID, err := rest.GetHeader(args, rest.ServiceIDHeader, true)
	if err != nil {
		return nil, err
	}
	contentType, err := rest.GetHeader(args, rest.ContentTypeHeader, true)
	if err != nil {
		return nil, err
	}
	ttl := blob.TTLInfinite
	seconds, present, err := rest.GetLongHeader(args, rest.TTLHeader)
	if err != nil {
		return nil, err
	}
	if present && seconds != rest.TTLInfinite {
		if seconds < 0 {
			return nil, rest.Errorf(rest.InvalidArgument, "%s must be -1 or non-negative", rest.TTLHeader)
		}
		ttl = time.Duration(seconds) * time.Second
	}
	private, err := rest.GetBoolHeader(args, rest.PrivateHeader)
	if err != nil {
		return nil, err
	}
	ownerID, err := rest.GetHeader(args, rest.OwnerIDHeader, false)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		ownerID = serviceID
	}
	acct, container, err := targetsOf(req)
	if err != nil {
		return nil, err
	}
	// Size optional on upload; the router measures the body itself.
	size, _, err := rest.GetLongHeader(args, rest.BlobSizeHeader)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, rest.Errorf(rest.InvalidArgument, "%s must be non-negative", rest.BlobSizeHeader)
	}
	return &blob.Properties{
		Size:         size,
		ServiceID:    serviceID,
		OwnerID:      ownerID,
		ContentType:  contentType,
		Private:      private,
		TTL:          ttl,
		CreationTime: time.Now(),
		AccountID:    acct.ID,
		ContainerID:  container.ID,
	}, nil
}
