// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"ambry.io/ambry/pkg/rest"
)

// responseChannel adapts http.ResponseWriter to rest.ResponseChannel.
// Headers and status stay buffered until the first body write or the
// completion, so error outcomes can still rewrite them.
type responseChannel struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	status      rest.Status
	flushed     bool
	open        bool
	completions int
	err         error
	done        chan struct{}
}

func newResponseChannel(w http.ResponseWriter) *responseChannel {
	return &responseChannel{
		w:      w,
		status: rest.StatusOK,
		open:   true,
		done:   make(chan struct{}),
	}
}

// Write implements rest.ResponseChannel. The first write commits the
// status line.
func (c *responseChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, Error.New("response channel is closed")
	}
	c.flushLocked()
	n, err := c.w.Write(p)
	return n, Error.Wrap(err)
}

// SetStatus implements rest.ResponseChannel.
func (c *responseChannel) SetStatus(status rest.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return Error.New("response channel is closed")
	}
	if c.flushed {
		return Error.New("response already started")
	}
	c.status = status
	return nil
}

// Status implements rest.ResponseChannel.
func (c *responseChannel) Status() rest.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetHeader implements rest.ResponseChannel.
func (c *responseChannel) SetHeader(name string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return Error.New("response channel is closed")
	}
	if c.flushed {
		return Error.New("response already started")
	}
	c.w.Header().Set(name, fmt.Sprint(value))
	return nil
}

// OnResponseComplete implements rest.ResponseChannel. The first call
// records the outcome; an error outcome that arrives before any body
// byte rewrites the status line and error code header.
func (c *responseChannel) OnResponseComplete(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions++
	if c.completions > 1 {
		return
	}
	c.err = err
	if c.open {
		if err != nil && !c.flushed {
			code := rest.CodeOf(err)
			if code == rest.UnknownErrorCode {
				code = rest.InternalError
			}
			c.w.Header().Set(rest.ErrorCodeHeader, code.String())
			c.status = code.Status()
		}
		c.flushLocked()
	}
	c.open = false
	close(c.done)
}

// IsOpen implements rest.ResponseChannel.
func (c *responseChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *responseChannel) flushLocked() {
	if c.flushed {
		return
	}
	c.flushed = true
	c.w.WriteHeader(int(c.status))
}

// wait blocks until the response completes or the client goes away.
// After an early client exit the writer must not be touched again, so
// the channel closes itself.
func (c *responseChannel) wait(ctx context.Context) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
	}
}
