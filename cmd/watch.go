package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/internal/app"
	"github.com/grovetools/envmirror/pkg/notify"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewWatchCmd returns the `watch` command.
func NewWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow backend changes and keep the mirror refreshed",
		Long: `Follow backend changes until interrupted.

Backends reached over a unix socket, HTTP or in-process stream their changes;
other transports are polled every --interval. Every refresh of the
environment list is reported on the env-sum-change channel.`,
	}
	m := newMirrorCommand(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Poll interval when the transport cannot stream")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return m.run(cmd, func(ctx context.Context, a *app.App) error {
			logger := cli.GetLogger(cmd)
			p := pretty(cmd)

			_, err := a.Notify.AddListener(notify.ChannelEnvSummariesChanged, func(ch notify.Channel, _ interface{}) {
				ids := a.Cache.EnvIDs()
				if jsonOutput(cmd) {
					printJSON(cmd, map[string]interface{}{"channel": ch, "environments": ids})
					return
				}
				p.Field(string(ch), fmt.Sprintf("%d environments [%s]", len(ids), strings.Join(ids, ", ")))
			}, true)
			if err != nil {
				return err
			}

			events, err := a.Events(ctx)
			if err != nil {
				logger.WithError(err).Debug("Falling back to polling")
				return poll(ctx, a, interval, logger)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						p.Warn("Event stream closed by backend")
						return nil
					}
					if err := apply(ctx, a, ev); err != nil {
						logger.WithError(err).Warn("Refresh failed")
					}
				}
			}
		})
	}
	return cmd
}

// apply refreshes what an event says changed.
func apply(ctx context.Context, a *app.App, ev rpc.Event) error {
	switch ev.Type {
	case "settings":
		return a.Cache.RefreshSettings(ctx)
	default:
		return a.Notify.RefreshEnvSummaries(ctx)
	}
}

func poll(ctx context.Context, a *app.App, interval time.Duration, logger *logrus.Entry) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.Cache.RefreshSettings(ctx); err != nil {
				logger.WithError(err).Warn("Settings refresh failed")
				continue
			}
			if err := a.Notify.RefreshEnvSummaries(ctx); err != nil {
				logger.WithError(err).Warn("Environment refresh failed")
			}
		}
	}
}
