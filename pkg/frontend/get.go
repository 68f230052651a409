// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
	"ambry.io/ambry/pkg/router"
)

// HandleGet serves blob data, the BlobInfo, UserMetadata and Replicas
// sub-resources and the peers operation.
func (s *Service) HandleGet(req rest.Request, resp rest.ResponseChannel) {
	mon.Meter("handle_get").Mark(1)
	if !s.ready(req, resp) {
		return
	}
	op := &getOperation{svc: s, req: req, resp: resp}
	s.protect(req, resp, op.start)
}

// HandleHead serves blob property and metadata headers without a body.
// The peers and Replicas views are GET-only.
func (s *Service) HandleHead(req rest.Request, resp rest.ResponseChannel) {
	mon.Meter("handle_head").Mark(1)
	if !s.ready(req, resp) {
		return
	}
	op := &getOperation{svc: s, req: req, resp: resp}
	s.protect(req, resp, op.start)
}

// getOperation carries one GET or HEAD through the pipeline. Each stage
// hands off through a callback; any error ends the request through
// submitResponse.
type getOperation struct {
	svc  *Service
	req  rest.Request
	resp rest.ResponseChannel

	ref    blobRef
	peers  bool
	blobID string
	result *router.GetBlobResult
}

func (op *getOperation) start() error {
	op.ref = parseBlobPath(op.req.Path())
	op.peers = op.req.Method() == rest.MethodGet && !op.ref.hasSub &&
		strings.EqualFold(op.ref.blobID, peersOperation)
	op.svc.security.ProcessRequest(op.svc.ctx, op.req, op.afterSecurity)
	return nil
}

func (op *getOperation) afterSecurity(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		if op.peers {
			op.svc.security.PostProcessRequest(op.svc.ctx, op.req, op.afterPostProcess)
			return nil
		}
		op.svc.converter.Convert(op.svc.ctx, op.req, op.ref.blobID, op.afterConvert)
		return nil
	})
}

func (op *getOperation) afterConvert(converted string, err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			if rest.CodeOf(err) == rest.UnknownErrorCode {
				err = rest.WrapError(rest.InternalError, err)
			}
			return err
		}
		op.blobID = converted
		// the replica listing needs no account resolution
		if !op.replicas() {
			if err := op.svc.injectTargetsFromBlobID(op.req, op.blobID); err != nil {
				return err
			}
		}
		op.svc.security.PostProcessRequest(op.svc.ctx, op.req, op.afterPostProcess)
		return nil
	})
}

func (op *getOperation) afterPostProcess(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		switch {
		case op.peers:
			return op.finishPeers()
		case op.replicas():
			return op.finishReplicas()
		}
		opts, err := op.buildOptions()
		if err != nil {
			return err
		}
		op.svc.router.GetBlob(op.svc.ctx, op.blobID, opts, op.afterRouter)
		return nil
	})
}

func (op *getOperation) afterRouter(result *router.GetBlobResult, err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return op.svc.mapRouterError(op.req.Method(), op.resp, err)
		}
		op.result = result
		op.svc.security.ProcessResponse(op.svc.ctx, op.req, op.resp, &result.Info, op.afterResponseSecurity)
		return nil
	})
}

func (op *getOperation) afterResponseSecurity(err error) {
	op.svc.protect(op.req, op.resp, func() error {
		if err != nil {
			return err
		}
		return op.finish()
	})
}

// replicas reports whether this is the GET-only Replicas view. HEAD
// treats any sub-resource suffix as part of a plain blob fetch.
func (op *getOperation) replicas() bool {
	return op.req.Method() == rest.MethodGet && op.ref.hasSub && op.ref.sub == rest.SubResourceReplicas
}

// buildOptions derives the router fetch from the method and
// sub-resource. Only whole-blob GETs fetch data and honor ranges.
func (op *getOperation) buildOptions() (router.GetBlobOptions, error) {
	opts := router.GetBlobOptions{Type: router.GetAll}
	args := op.req.Args()

	optionHeader, err := rest.GetHeader(args, rest.GetOptionHeader, false)
	if err != nil {
		return opts, err
	}
	opts.Option, err = rest.ParseGetOption(optionHeader)
	if err != nil {
		return opts, err
	}

	if op.ref.hasSub || op.req.Method() == rest.MethodHead {
		opts.Type = router.GetBlobInfo
		return opts, nil
	}

	rangeHeader, err := rest.GetHeader(args, rest.RangeHeader, false)
	if err != nil {
		return opts, err
	}
	if rangeHeader != "" {
		opts.Range, err = rest.ParseRange(rangeHeader)
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// finish renders the terminal success response for a blob fetch.
func (op *getOperation) finish() error {
	if op.resp.Status() == rest.StatusNotModified {
		op.svc.submitResponse(op.req, op.resp, nil, nil)
		return nil
	}
	info := &op.result.Info
	switch {
	case op.req.Method() == rest.MethodHead:
		op.svc.submitResponse(op.req, op.resp, nil, nil)
		return nil
	case op.ref.hasSub && op.ref.sub == rest.SubResourceBlobInfo:
		if err := setBlobPropertiesHeaders(op.resp, &info.Properties); err != nil {
			return err
		}
		return op.finishUserMetadata(info)
	case op.ref.hasSub && op.ref.sub == rest.SubResourceUserMetadata:
		return op.finishUserMetadata(info)
	}
	body, err := op.result.Body.Range(op.svc.ctx, 0, op.result.Body.Size())
	if err != nil {
		return rest.WrapError(rest.InternalError, err)
	}
	op.svc.submitResponse(op.req, op.resp, body, nil)
	return nil
}

// finishUserMetadata renders header-form metadata as x-ambry-um-*
// headers with an empty body. Metadata stored before the header form
// existed is returned raw.
func (op *getOperation) finishUserMetadata(info *router.BlobInfo) error {
	rendered, err := setUserMetadataHeaders(op.resp, info.UserMetadata)
	if err != nil {
		return err
	}
	if !rendered {
		if err := setHeader(op.resp, rest.HTTPContentType, "application/octet-stream"); err != nil {
			return err
		}
		if err := setHeader(op.resp, rest.ContentLengthHeader, strconv.Itoa(len(info.UserMetadata))); err != nil {
			return err
		}
		op.svc.submitResponse(op.req, op.resp, ioutil.NopCloser(bytes.NewReader(info.UserMetadata)), nil)
		return nil
	}
	if err := setHeader(op.resp, rest.ContentLengthHeader, "0"); err != nil {
		return err
	}
	op.svc.submitResponse(op.req, op.resp, nil, nil)
	return nil
}

// finishPeers answers the peers operation with the datanodes sharing a
// partition with the named node.
func (op *getOperation) finishPeers() error {
	args := op.req.Args()
	name, err := rest.GetHeader(args, "name", true)
	if err != nil {
		return err
	}
	portValue, err := rest.GetHeader(args, "port", true)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return rest.Errorf(rest.MissingArgs, "port %q is not a number", portValue)
	}
	node, err := op.svc.cmap.DataNode(name, port)
	if err != nil {
		return rest.WrapError(rest.NotFound, err)
	}

	type peer struct {
		Name string `json:"name"`
		Port int    `json:"port"`
	}
	payload := struct {
		Peers []peer `json:"peers"`
	}{Peers: []peer{}}
	for _, p := range op.svc.cmap.Peers(node) {
		payload.Peers = append(payload.Peers, peer{Name: p.Hostname, Port: p.Port})
	}
	return op.finishJSON(payload)
}

// finishReplicas answers the Replicas sub-resource with the replica
// paths of the blob's partition.
func (op *getOperation) finishReplicas() error {
	id, err := blob.Parse(op.blobID)
	if err != nil {
		return rest.WrapError(rest.BadRequest, err)
	}
	partition, err := op.svc.cmap.PartitionByID(id.Partition())
	if err != nil {
		return rest.WrapError(rest.BadRequest, err)
	}
	payload := struct {
		Replicas []string `json:"replicas"`
	}{Replicas: []string{}}
	for _, replica := range partition.Replicas() {
		payload.Replicas = append(payload.Replicas, replica.String())
	}
	return op.finishJSON(payload)
}

func (op *getOperation) finishJSON(payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return rest.WrapError(rest.InternalError, err)
	}
	if err := setHeader(op.resp, rest.DateHeader, rest.FormatDate(time.Now())); err != nil {
		return err
	}
	if err := setHeader(op.resp, rest.HTTPContentType, "application/json"); err != nil {
		return err
	}
	if err := setHeader(op.resp, rest.ContentLengthHeader, strconv.Itoa(len(body))); err != nil {
		return err
	}
	op.svc.submitResponse(op.req, op.resp, ioutil.NopCloser(bytes.NewReader(body)), nil)
	return nil
}
