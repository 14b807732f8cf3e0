package rpc

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind selects a transport.
type Kind string

const (
	KindAuto      Kind = "auto"
	KindUnix      Kind = "unix"
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "websocket"
	KindNATS      Kind = "nats"
	KindLocal     Kind = "local"
)

// Options describes how to reach the backend.
type Options struct {
	Kind    Kind
	Socket  string        // unix socket path (unix, auto)
	URL     string        // base URL (http) or ws:// URL (websocket)
	NATSURL string        // NATS server URL (nats)
	Subject string        // NATS subject prefix
	Timeout time.Duration // per-request timeout for http/unix/nats

	// Local serves calls in-process for KindLocal, and is the fallback for KindAuto
	// when no backend socket answers.
	Local Handler

	Logger *logrus.Entry
}

// Dialer returns a DialFunc for the configured transport.
//
// KindAuto implements the transparent backend pattern: if a backend is listening on
// the socket use it, otherwise fall back to the in-process handler.
func Dialer(opts Options) (DialFunc, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	switch opts.Kind {
	case KindUnix:
		if opts.Socket == "" {
			return nil, fmt.Errorf("unix transport requires a socket path")
		}
		return dialEach(func() Channel { return NewUnixChannel(opts.Socket, opts.Timeout) }), nil
	case KindHTTP:
		if opts.URL == "" {
			return nil, fmt.Errorf("http transport requires a url")
		}
		return dialEach(func() Channel { return NewHTTPChannel(opts.URL, opts.Timeout) }), nil
	case KindWebSocket:
		if opts.URL == "" {
			return nil, fmt.Errorf("websocket transport requires a url")
		}
		return dialEach(func() Channel { return NewWebSocketChannel(opts.URL, opts.Logger) }), nil
	case KindNATS:
		if opts.NATSURL == "" {
			return nil, fmt.Errorf("nats transport requires a server url")
		}
		return dialEach(func() Channel { return NewNATSChannel(opts.NATSURL, opts.Subject, opts.Timeout) }), nil
	case KindLocal:
		if opts.Local == nil {
			return nil, fmt.Errorf("local transport requires a handler")
		}
		return dialEach(func() Channel { return NewLocalChannel(opts.Local) }), nil
	case KindAuto, "":
		return func(ctx context.Context) (Channel, error) {
			if socketAnswers(opts.Socket) {
				return NewUnixChannel(opts.Socket, opts.Timeout), nil
			}
			if opts.Local == nil {
				return nil, fmt.Errorf("no backend listening on %s and no local fallback configured", opts.Socket)
			}
			if opts.Logger != nil {
				opts.Logger.Debug("Backend socket not available, using local backend")
			}
			return NewLocalChannel(opts.Local), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", opts.Kind)
	}
}

// dialEach builds a fresh channel on every dial, so a cache can reconnect
// after Close or a failed Initialize.
func dialEach(build func() Channel) DialFunc {
	return func(context.Context) (Channel, error) {
		return build(), nil
	}
}

// socketAnswers reports whether the socket file exists and accepts a connection.
func socketAnswers(socketPath string) bool {
	if socketPath == "" {
		return false
	}
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
