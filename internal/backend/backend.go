package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/internal/backend/pidfile"
	"github.com/grovetools/envmirror/internal/backend/server"
	"github.com/grovetools/envmirror/internal/backend/store"
	"github.com/grovetools/envmirror/pkg/paths"
	"github.com/sirupsen/logrus"
)

// Options configures a backend process.
type Options struct {
	StateFile string
	Socket    string
	Listen    string // optional TCP address
	NATSURL   string // optional NATS server
	Subject   string
	PidFile   string
}

// OptionsFromConfig reads the backend section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StateFile: cfg.Backend.StateFile,
		Socket:    cfg.Backend.Socket,
		Listen:    cfg.Backend.Listen,
		NATSURL:   cfg.Backend.NATSURL,
		Subject:   cfg.Backend.Subject,
		PidFile:   paths.PidFilePath(),
	}
}

// Backend wires the state store, the rpc handler and the servers.
type Backend struct {
	opts    Options
	logger  *logrus.Entry
	store   *store.Store
	handler *Handler
	server  *server.Server
}

// New opens the state file and builds the handler and server.
func New(opts Options, logger *logrus.Entry) (*Backend, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	st, err := store.Open(opts.StateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %s: %w", opts.StateFile, err)
	}
	handler := NewHandler(st, logger)
	return &Backend{
		opts:    opts,
		logger:  logger,
		store:   st,
		handler: handler,
		server:  server.New(handler, st, logger),
	}, nil
}

// Handler serves rpc calls in-process.
func (b *Backend) Handler() *Handler {
	return b.handler
}

// Store returns the state store.
func (b *Backend) Store() *store.Store {
	return b.store
}

// Server returns the HTTP server.
func (b *Backend) Server() *server.Server {
	return b.server
}

// Run serves until ctx is done or a listener fails.
func (b *Backend) Run(ctx context.Context) error {
	if b.opts.PidFile != "" {
		if err := pidfile.Acquire(b.opts.PidFile); err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		defer func() {
			if err := pidfile.Release(b.opts.PidFile); err != nil {
				b.logger.Errorf("Failed to release pidfile: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 4)
	run := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
				return
			}
			errs <- nil
		}()
	}

	running := 0
	run("state watcher", func() error { return b.store.WatchFile(ctx, b.logger) })
	running++
	if b.opts.Socket != "" {
		run("unix listener", func() error { return b.server.ListenAndServe(b.opts.Socket) })
		running++
	}
	if b.opts.Listen != "" {
		run("tcp listener", func() error { return b.server.ListenAndServeTCP(b.opts.Listen) })
		running++
	}
	if b.opts.NATSURL != "" {
		run("nats responder", func() error { return b.server.ServeNATS(ctx, b.opts.NATSURL, b.opts.Subject) })
		running++
	}

	b.logger.WithField("pid", os.Getpid()).Info("Starting backend")

	var runErr error
	select {
	case <-ctx.Done():
		b.logger.Info("Received stop signal")
	case err := <-errs:
		running--
		runErr = err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := b.server.Shutdown(shutdownCtx); err != nil {
		b.logger.Errorf("Server shutdown error: %v", err)
	}

	for ; running > 0; running-- {
		select {
		case err := <-errs:
			if runErr == nil {
				runErr = err
			}
		case <-shutdownCtx.Done():
			return runErr
		}
	}
	return runErr
}
