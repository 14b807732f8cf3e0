package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/grovetools/envmirror/errors"
)

// Request is the envelope used by message-oriented transports (WebSocket, NATS).
type Request struct {
	ID      string          `json:"id"`
	Method  Method          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// RemoteError is a rejection reported by the backend.
type RemoteError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend rejected call: %s: %s", e.Code, e.Message)
	}
	return "backend rejected call: " + e.Message
}

// NewRemoteError converts a handler error into its wire form.
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RemoteError); ok {
		return re
	}
	return &RemoteError{Code: string(errors.GetCode(err)), Message: err.Error()}
}

// NewRequest builds an envelope with a fresh request id.
func NewRequest(method Method, payload interface{}) (Request, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Request{}, err
	}
	return Request{ID: uuid.NewString(), Method: method, Payload: raw}, nil
}

// Dispatch runs a request through a handler and builds the reply envelope.
// Handler failures are carried in the envelope, never returned.
func Dispatch(ctx context.Context, h Handler, req Request) Response {
	resp := Response{ID: req.ID}
	result, err := h.Serve(ctx, req.Method, req.Payload)
	if err != nil {
		resp.Error = NewRemoteError(err)
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RemoteError{Code: string(errors.ErrCodeInternal), Message: fmt.Sprintf("encode result: %v", err)}
		return resp
	}
	resp.Result = raw
	return resp
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

// decodeResponse turns a reply envelope into either an error or a decoded result.
func decodeResponse(resp Response, result interface{}) error {
	if resp.Error != nil {
		return resp.Error
	}
	return decodeResult(resp.Result, result)
}

func decodeResult(raw json.RawMessage, result interface{}) error {
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
