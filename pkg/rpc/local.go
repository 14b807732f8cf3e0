package rpc

import (
	"context"
	"errors"
	"sync"
)

// LocalChannel serves calls in-process through a Handler.
// Payloads and results still pass through their JSON encoding so that the
// local path behaves the same as the remote ones.
type LocalChannel struct {
	handler Handler

	mu     sync.RWMutex
	ready  bool
	closed bool
}

// NewLocalChannel creates a LocalChannel backed by h.
func NewLocalChannel(h Handler) *LocalChannel {
	return &LocalChannel{handler: h}
}

// Init marks the channel ready.
func (c *LocalChannel) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return errors.New("local channel has no handler")
	}
	if c.closed {
		return errors.New("local channel is closed")
	}
	c.ready = true
	return nil
}

// Call dispatches the call to the handler.
func (c *LocalChannel) Call(ctx context.Context, method Method, payload, result interface{}) error {
	c.mu.RLock()
	ready, closed := c.ready, c.closed
	c.mu.RUnlock()
	if closed {
		return errors.New("local channel is closed")
	}
	if !ready {
		return errors.New("local channel is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req, err := NewRequest(method, payload)
	if err != nil {
		return err
	}
	return decodeResponse(Dispatch(ctx, c.handler, req), result)
}

// Close stops further calls.
func (c *LocalChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Ensure LocalChannel implements Channel interface.
var _ Channel = (*LocalChannel)(nil)
