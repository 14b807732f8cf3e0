// Package backend is the reference backend process: it owns settings and
// environments and serves them to mirrors over every rpc transport.
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/backend/store"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/sirupsen/logrus"
)

// Handler serves the four rpc methods from a store.
type Handler struct {
	store  *store.Store
	logger *logrus.Entry
}

// NewHandler creates a Handler.
func NewHandler(st *store.Store, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{store: st, logger: logger}
}

// Serve implements rpc.Handler.
func (h *Handler) Serve(ctx context.Context, method rpc.Method, payload json.RawMessage) (interface{}, error) {
	h.logger.WithField("method", method).Debug("Serving call")

	switch method {
	case rpc.MethodGetSettings:
		return h.store.Settings(), nil

	case rpc.MethodSetSetting:
		var req models.SetSettingRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := h.store.SetSetting(req.Name, req.Value, "rpc"); err != nil {
			return nil, err
		}
		return nil, nil

	case rpc.MethodGetEnvSummaries:
		return h.store.EnvSummaries(), nil

	case rpc.MethodSetEnvProperty:
		var req models.SetEnvPropertyRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := h.store.SetEnvProperty(req.EnvID, req.Name, req.Value, "rpc"); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown method '%s'", method)).
			WithDetail("method", string(method))
	}
}

func decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid payload")
	}
	return nil
}

var _ rpc.Handler = (*Handler)(nil)
