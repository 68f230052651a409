// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend

import (
	"time"

	"ambry.io/ambry/pkg/rest"
	"ambry.io/ambry/pkg/router"
)

// HandleDelete marks a blob deleted. Deleting an already deleted blob
// succeeds again, so the operation is idempotent.
func (s *Service) HandleDelete(req rest.Request, resp rest.ResponseChannel) {
	mon.Meter("handle_delete").Mark(1)
	if !s.ready(req, resp) {
		return
	}
	op := &deleteOperation{svc: s, req: req, resp: resp}
	s.protect(req, resp, op.start)
}

// deleteOperation carries one delete through the pipeline.
type deleteOperation struct {
	svc  *Service
	req  rest.Request
	resp rest.ResponseChannel

	blobID string
}

func (op *deleteOperation) start() error {
	op.svc.security.ProcessRequest(op.svc.ctx, op.req, op.afterSecurity)
	return nil
}

func (op *deleteOperation) afterSecurity(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		op.svc.converter.Convert(op.svc.ctx, op.req, parseBlobPath(op.req.Path()).blobID, op.afterConvert)
		return nil
	})
}

func (op *deleteOperation) afterConvert(converted string, err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			if rest.CodeOf(err) == rest.UnknownErrorCode {
				err = rest.WrapError(rest.InternalError, err)
			}
			return err
		}
		op.blobID = converted
		if err := op.svc.injectTargetsFromBlobID(op.req, op.blobID); err != nil {
			return err
		}
		op.svc.security.PostProcessRequest(op.svc.ctx, op.req, op.afterPostProcess)
		return nil
	})
}

func (op *deleteOperation) afterPostProcess(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		serviceID, err := rest.GetHeader(op.req.Args(), rest.ServiceIDHeader, false)
		if err != nil {
			return err
		}
		op.svc.router.DeleteBlob(op.svc.ctx, op.blobID, serviceID, op.afterRouter)
		return nil
	})
}

func (op *deleteOperation) afterRouter(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil && router.CodeOf(err) != router.BlobDeleted {
			return op.svc.mapRouterError(rest.MethodDelete, op.resp, err)
		}
		if err := setHeader(op.resp, rest.DateHeader, rest.FormatDate(time.Now())); err != nil {
			return err
		}
		if err := setHeader(op.resp, rest.ContentLengthHeader, "0"); err != nil {
			return err
		}
		if err := op.resp.SetStatus(rest.StatusAccepted); err != nil {
			return rest.WrapError(rest.InternalError, err)
		}
		op.svc.submitResponse(op.req, op.resp, nil, nil)
		return nil
	})
}
