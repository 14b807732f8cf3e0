package rpc

import (
	"context"

	"github.com/grovetools/envmirror/pkg/models"
)

// Backend exposes the backend's typed methods over any Channel.
type Backend struct {
	ch Channel
}

// NewBackend wraps ch.
func NewBackend(ch Channel) *Backend {
	return &Backend{ch: ch}
}

// Channel returns the wrapped channel.
func (b *Backend) Channel() Channel {
	return b.ch
}

// GetSettings fetches all settings.
func (b *Backend) GetSettings(ctx context.Context) (models.Settings, error) {
	var settings models.Settings
	if err := b.ch.Call(ctx, MethodGetSettings, nil, &settings); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = make(models.Settings)
	}
	return settings, nil
}

// SetSetting stores one setting.
func (b *Backend) SetSetting(ctx context.Context, name models.Setting, value string) error {
	return b.ch.Call(ctx, MethodSetSetting, models.SetSettingRequest{Name: name, Value: value}, nil)
}

// GetEnvSummaries fetches the ordered list of environment summaries.
func (b *Backend) GetEnvSummaries(ctx context.Context) ([]models.EnvSummary, error) {
	var summaries []models.EnvSummary
	if err := b.ch.Call(ctx, MethodGetEnvSummaries, nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// SetEnvProperty stores one property of one environment.
func (b *Backend) SetEnvProperty(ctx context.Context, envID string, name models.EnvProperty, value string) error {
	req := models.SetEnvPropertyRequest{EnvID: envID, Name: name, Value: value}
	return b.ch.Call(ctx, MethodSetEnvProperty, req, nil)
}
