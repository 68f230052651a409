// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend

import (
	"context"
	"strings"

	"ambry.io/ambry/pkg/rest"
)

// ConvertCallback receives the converted id or the conversion failure.
type ConvertCallback func(converted string, err error)

// IDConverter rewrites blob ids between their wire form and the form
// the router understands. Implementations must invoke the callback
// exactly once.
type IDConverter interface {
	Convert(ctx context.Context, req rest.Request, input string, cb ConvertCallback)
}

// idConverter is the stock converter. Incoming ids arrive as URI paths
// and lose their leading slash; ids minted on POST pass through as-is.
type idConverter struct{}

// NewIDConverter returns the stock id converter.
func NewIDConverter() IDConverter { return idConverter{} }

func (idConverter) Convert(ctx context.Context, req rest.Request, input string, cb ConvertCallback) {
	converted := input
	if req.Method() != rest.MethodPost {
		converted = strings.TrimPrefix(converted, "/")
	}
	cb(converted, nil)
}
