// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package errs2 collects utilities for error handling around long
// running services.
package errs2

import (
	"context"
	"net/http"

	"github.com/zeebo/errs"
	"google.golang.org/grpc"
)

// IsCanceled returns true when the error is an ordinary shutdown
// cancellation.
func IsCanceled(err error) bool {
	return errs.IsFunc(err, func(err error) bool {
		return err == context.Canceled ||
			err == grpc.ErrServerStopped ||
			err == http.ErrServerClosed
	})
}

// IgnoreCanceled returns nil when the operation failed only because it
// was canceled.
func IgnoreCanceled(err error) error {
	if IsCanceled(err) {
		return nil
	}
	return err
}
