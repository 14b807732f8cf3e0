// Package rpc provides the request/response channel between the front-end mirror and the
// backend process that owns settings and environments.
//
// A Channel is opaque to its callers: every call is a single request that either resolves
// with a payload or is rejected with an error. Several transports implement it (HTTP over a
// unix socket or TCP, WebSocket, NATS request/reply, and an in-process local channel), and
// Backend layers the four typed backend methods on top of any of them.
package rpc

import (
	"context"
	"encoding/json"
)

// Method names a backend call.
type Method string

const (
	MethodGetSettings     Method = "getSettings"
	MethodSetSetting      Method = "setSetting"
	MethodGetEnvSummaries Method = "getEnvSummaries"
	MethodSetEnvProperty  Method = "setEnvProperty"
)

// Methods lists every method a backend must serve.
var Methods = []Method{
	MethodGetSettings,
	MethodSetSetting,
	MethodGetEnvSummaries,
	MethodSetEnvProperty,
}

// Channel is an asynchronous request/response connection to the backend.
type Channel interface {
	// Init completes channel setup (connecting, probing health). It must succeed
	// before Call is used.
	Init(ctx context.Context) error

	// Call sends payload under method and decodes the reply into result.
	// result may be nil for calls that carry no reply payload.
	Call(ctx context.Context, method Method, payload, result interface{}) error

	// Close releases the underlying connection.
	Close() error
}

// DialFunc constructs a Channel. Construction itself may fail.
type DialFunc func(ctx context.Context) (Channel, error)

// Handler serves backend calls. It is implemented by the backend and used
// directly by LocalChannel and by every server-side transport.
type Handler interface {
	Serve(ctx context.Context, method Method, payload json.RawMessage) (interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, method Method, payload json.RawMessage) (interface{}, error)

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, method Method, payload json.RawMessage) (interface{}, error) {
	return f(ctx, method, payload)
}
