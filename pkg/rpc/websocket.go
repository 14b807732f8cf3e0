package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grovetools/envmirror/version"
	"github.com/sirupsen/logrus"
)

var errChannelClosed = errors.New("websocket channel closed")

// WebSocketChannel multiplexes calls over one WebSocket connection.
// Replies are matched to calls by request id, so calls may overlap.
type WebSocketChannel struct {
	url    string
	dialer *websocket.Dialer
	logger *logrus.Entry

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan Response
	done    chan struct{}
	err     error
}

// NewWebSocketChannel creates a channel for a ws:// or wss:// URL.
func NewWebSocketChannel(url string, logger *logrus.Entry) *WebSocketChannel {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebSocketChannel{
		url:     url,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
	}
}

// Init dials the backend and starts the reply reader.
func (c *WebSocketChannel) Init(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, http.Header{"User-Agent": {version.UserAgent()}})
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.conn = conn
	go c.readLoop()
	return nil
}

func (c *WebSocketChannel) readLoop() {
	for {
		var resp Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.fail(err)
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.WithField("id", resp.ID).Debug("Dropping reply for unknown request")
			continue
		}
		ch <- resp
	}
}

// fail terminates every pending call with err.
func (c *WebSocketChannel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = errChannelClosed
	}
	c.err = err
	close(c.done)
	c.pending = make(map[string]chan Response)
}

// Call sends one request envelope and waits for its reply.
func (c *WebSocketChannel) Call(ctx context.Context, method Method, payload, result interface{}) error {
	if c.conn == nil {
		return errors.New("websocket channel is not initialized")
	}

	req, err := NewRequest(method, payload)
	if err != nil {
		return err
	}

	replyCh := make(chan Response, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("failed to call %s: %w", method, err)
	default:
	}
	c.pending[req.ID] = replyCh
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case resp := <-replyCh:
		return decodeResponse(resp, result)
	case <-c.done:
		return fmt.Errorf("failed to call %s: %w", method, c.err)
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	}
}

func (c *WebSocketChannel) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close sends a close frame and tears down the connection.
func (c *WebSocketChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.fail(errChannelClosed)
	return c.conn.Close()
}

// Ensure WebSocketChannel implements Channel interface.
var _ Channel = (*WebSocketChannel)(nil)
