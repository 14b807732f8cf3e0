package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/envmirror/version"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix the backend listens on.
const DefaultSubject = "envmirror.rpc"

// NATSChannel sends each call as a NATS request on <subject>.<method>.
type NATSChannel struct {
	url     string
	subject string
	timeout time.Duration
	conn    *nats.Conn
}

// NewNATSChannel creates a channel for the given server URL and subject prefix.
func NewNATSChannel(url, subject string, timeout time.Duration) *NATSChannel {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATSChannel{url: url, subject: subject, timeout: timeout}
}

// Init connects to the NATS server.
func (c *NATSChannel) Init(ctx context.Context) error {
	conn, err := nats.Connect(c.url, nats.Name(version.UserAgent()))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.conn = conn
	return nil
}

// SubjectFor returns the request subject of a method.
func SubjectFor(prefix string, method Method) string {
	return prefix + "." + string(method)
}

// MethodFromSubject is the inverse of SubjectFor. ok is false for subjects
// outside prefix or without a method.
func MethodFromSubject(prefix, subject string) (Method, bool) {
	rest, found := strings.CutPrefix(subject, prefix+".")
	if !found || rest == "" || strings.Contains(rest, ".") {
		return "", false
	}
	return Method(rest), true
}

// Call publishes a request envelope and decodes the reply envelope.
func (c *NATSChannel) Call(ctx context.Context, method Method, payload, result interface{}) error {
	if c.conn == nil {
		return errors.New("nats channel is not initialized")
	}

	subject, data, err := encodeNATSRequest(c.subject, method, payload)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	return decodeNATSReply(method, msg.Data, result)
}

// encodeNATSRequest returns the subject and envelope of one call.
func encodeNATSRequest(prefix string, method Method, payload interface{}) (string, []byte, error) {
	req, err := NewRequest(method, payload)
	if err != nil {
		return "", nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return SubjectFor(prefix, method), data, nil
}

func decodeNATSReply(method Method, data []byte, result interface{}) error {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	return decodeResponse(resp, result)
}

// Close drains and closes the connection.
func (c *NATSChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.Close()
	return nil
}

// Ensure NATSChannel implements Channel interface.
var _ Channel = (*NATSChannel)(nil)
