// Package app wires configuration, the backend channel, the remote state
// cache and the notification store together.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/backend"
	"github.com/grovetools/envmirror/pkg/filemanager"
	"github.com/grovetools/envmirror/pkg/notify"
	"github.com/grovetools/envmirror/pkg/profiling"
	"github.com/grovetools/envmirror/pkg/remotestate"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// App is an initialized mirror.
type App struct {
	Config *config.Config
	Cache  *remotestate.Cache
	Notify *notify.Store

	logger   *logrus.Entry
	local    *backend.Backend
	registry *prometheus.Registry

	mu      sync.Mutex
	channel rpc.Channel
}

// New builds the mirror described by cfg and initializes it. The cache is
// ready and the notification store built when New returns.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*App, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	timeout, err := cfg.TransportTimeout()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	kind := rpc.Kind(cfg.Transport.Kind)
	opts := rpc.Options{
		Kind:    kind,
		Socket:  cfg.Transport.Socket,
		URL:     cfg.Transport.URL,
		NATSURL: cfg.Transport.NATSURL,
		Subject: cfg.Transport.Subject,
		Timeout: timeout,
		Logger:  logger,
	}
	if kind == rpc.KindLocal || kind == rpc.KindAuto || kind == "" {
		a.local, err = backend.New(backend.OptionsFromConfig(cfg), logger.WithField("side", "local"))
		if err != nil {
			return nil, err
		}
		opts.Local = a.local.Handler()
	}

	dial, err := rpc.Dialer(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid transport configuration")
	}

	cacheOpts := []remotestate.Option{
		remotestate.WithLogger(logger),
		remotestate.WithRecorder(remotestate.NewPrometheusRecorder(a.registry)),
	}
	if cfg.Cache.SerializeWrites {
		cacheOpts = append(cacheOpts, remotestate.WithSerializedWrites())
	}
	a.Cache = remotestate.New(a.track(dial), filemanager.NewFactory(logger), cacheOpts...)

	span := profiling.Start("cache.initialize")
	err = a.Cache.Initialize(ctx)
	span.Stop()
	if err != nil {
		a.Cache.Close()
		return nil, err
	}

	a.Notify, err = notify.New(a.Cache, Schema(cfg))
	if err != nil {
		a.Cache.Close()
		return nil, err
	}
	return a, nil
}

// Schema returns the default notification schema with the initial sort and
// view taken from the ui section.
func Schema(cfg *config.Config) notify.Schema {
	schema := notify.DefaultSchema()
	if order, ok := notify.ParseSortOrder(cfg.UI.EnvSort); ok {
		schema[notify.ChannelEnvSort] = order
	}
	if view, ok := notify.ParseView(cfg.UI.EnvView); ok {
		schema[notify.ChannelEnvView] = view
	}
	return schema
}

// track remembers the most recently dialed channel so Events can reuse its
// transport.
func (a *App) track(dial rpc.DialFunc) rpc.DialFunc {
	return func(ctx context.Context) (rpc.Channel, error) {
		ch, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.channel = ch
		a.mu.Unlock()
		return ch, nil
	}
}

// Registry holds the cache metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// IsLocal reports whether calls are served in-process.
func (a *App) IsLocal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.channel.(*rpc.LocalChannel)
	return ok
}

// Events streams backend changes. It fails when the transport cannot stream,
// in which case callers poll instead.
func (a *App) Events(ctx context.Context) (<-chan rpc.Event, error) {
	a.mu.Lock()
	ch := a.channel
	a.mu.Unlock()

	if _, ok := ch.(*rpc.LocalChannel); ok && a.local != nil {
		return a.localEvents(ctx), nil
	}
	if src, ok := ch.(rpc.EventSource); ok {
		return src.Events(ctx)
	}
	return nil, fmt.Errorf("transport %q does not stream events", a.Config.Transport.Kind)
}

func (a *App) localEvents(ctx context.Context) <-chan rpc.Event {
	st := a.local.Store()
	updates := st.Subscribe()
	out := make(chan rpc.Event, 16)
	go func() {
		defer close(out)
		defer st.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- rpc.Event{Type: string(u.Type), Source: u.Source, Key: u.Key}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close releases the cache and its file managers.
func (a *App) Close() error {
	return a.Cache.Close()
}
