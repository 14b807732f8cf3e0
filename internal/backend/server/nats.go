package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/nats-io/nats.go"
)

// ServeNATS answers requests published on <subject>.<method> until ctx is
// done. Each message carries an rpc.Request envelope and is answered with an
// rpc.Response.
func (s *Server) ServeNATS(ctx context.Context, url, subject string) error {
	if subject == "" {
		subject = rpc.DefaultSubject
	}

	conn, err := nats.Connect(url, nats.Name("envmirror-backend"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	defer conn.Close()

	sub, err := conn.Subscribe(subject+".*", func(msg *nats.Msg) {
		s.serveNATSMsg(ctx, subject, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s.*: %w", subject, err)
	}
	defer sub.Unsubscribe()

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush NATS subscription: %w", err)
	}

	s.logger.WithField("subject", subject+".*").Info("Backend answering NATS requests")
	<-ctx.Done()
	return nil
}

func (s *Server) serveNATSMsg(ctx context.Context, subject string, msg *nats.Msg) {
	data, err := json.Marshal(s.natsReply(ctx, subject, msg.Subject, msg.Data))
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode NATS reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.WithError(err).Debug("Failed to send NATS reply")
	}
}

// natsReply answers one request envelope. The subject names the method; an
// envelope naming a different one is rejected.
func (s *Server) natsReply(ctx context.Context, prefix, subject string, data []byte) rpc.Response {
	method, ok := rpc.MethodFromSubject(prefix, subject)
	if !ok {
		return rpc.Response{Error: rpc.NewRemoteError(errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("subject '%s' does not name a method", subject)))}
	}

	var req rpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return rpc.Response{Error: rpc.NewRemoteError(errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request envelope"))}
	}
	if req.Method == "" {
		req.Method = method
	}
	if req.Method != method {
		return rpc.Response{ID: req.ID, Error: rpc.NewRemoteError(errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("envelope method '%s' does not match subject '%s'", req.Method, subject)))}
	}
	return s.Dispatch(ctx, "nats", req)
}
