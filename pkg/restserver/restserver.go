// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package restserver adapts net/http to the rest pipeline: incoming
// requests become rest.Requests, response channels buffer onto the
// http.ResponseWriter, and an asynchronous response handler performs
// the final body streaming off the pipeline goroutines.
package restserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ambry.io/ambry/pkg/rest"
)

// Error is the errs class of restserver errors.
var Error = errs.Class("restserver error")

var mon = monkit.Package()

// Pipeline handles one rest request and eventually completes its
// response channel exactly once.
type Pipeline interface {
	Handle(req rest.Request, resp rest.ResponseChannel)
}

// Config configures the HTTP listener.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":1174"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// Server serves the rest pipeline over HTTP.
type Server struct {
	log      *zap.Logger
	cfg      Config
	pipeline Pipeline
	listener net.Listener
	http     *http.Server
}

// New binds the listen address and returns a server ready to Run.
func New(log *zap.Logger, cfg Config, pipeline Pipeline) (*Server, error) {
	cfg = cfg.withDefaults()
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	server := &Server{
		log:      log,
		cfg:      cfg,
		pipeline: pipeline,
		listener: listener,
	}
	server.http = &http.Server{Handler: server}
	return server, nil
}

// Addr returns the bound listen address.
func (server *Server) Addr() string { return server.listener.Addr().String() }

// Run serves until ctx is canceled, then drains within the configured
// shutdown timeout.
func (server *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.cfg.ShutdownTimeout)
		defer shutdownCancel()
		err := server.http.Shutdown(shutdownCtx)
		if err == http.ErrServerClosed {
			err = nil
		}
		return Error.Wrap(err)
	})
	group.Go(func() error {
		defer cancel()
		server.log.Info("server started", zap.String("addr", server.Addr()))
		err := server.http.Serve(server.listener)
		if err == http.ErrServerClosed {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// ServeHTTP implements http.Handler. It blocks until the pipeline
// completes the response or the client goes away.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mon.Meter("http_requests").Mark(1)

	req := newRequest(r)
	resp := newResponseChannel(w)
	server.pipeline.Handle(req, resp)
	resp.wait(r.Context())
}
