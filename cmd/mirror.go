// Package cmd implements the envmirror subcommands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/internal/app"
	"github.com/grovetools/envmirror/logging"
	"github.com/grovetools/envmirror/pkg/profiling"
	"github.com/spf13/cobra"
)

// mirrorCommand is a command group that talks to the backend through a
// remote state cache.
type mirrorCommand struct {
	transport cli.TransportFlags
}

func newMirrorCommand(cmd *cobra.Command) *mirrorCommand {
	m := &mirrorCommand{}
	cli.BindTransportFlags(cmd.PersistentFlags(), &m.transport)
	return m
}

// config loads the configuration and applies the transport flags.
func (m *mirrorCommand) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := cli.LoadConfig(cli.GetOptions(cmd))
	if err != nil {
		return nil, err
	}
	m.transport.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run opens the mirror, calls fn and closes the mirror again. ctx is
// cancelled on SIGINT or SIGTERM.
func (m *mirrorCommand) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := m.config(cmd)
	if err != nil {
		return err
	}
	logger := cli.GetLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close mirror")
		}
	}()

	logger.WithField("transport", cfg.Transport.Kind).Debug("Mirror ready")
	defer profiling.Start(cmd.CommandPath()).Stop()
	return fn(ctx, a)
}

func jsonOutput(cmd *cobra.Command) bool {
	return cli.GetOptions(cmd).JSONOutput
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func pretty(cmd *cobra.Command) *logging.PrettyLogger {
	return logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).WithWidth(cli.TerminalWidth())
}
