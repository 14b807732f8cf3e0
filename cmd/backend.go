package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/internal/backend"
	"github.com/grovetools/envmirror/internal/backend/pidfile"
	"github.com/grovetools/envmirror/internal/backend/store"
	"github.com/grovetools/envmirror/logging"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/paths"
	"github.com/grovetools/envmirror/pkg/process"
	"github.com/spf13/cobra"
)

// NewBackendCmd returns the backend command with subcommands.
func NewBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run and manage the reference backend",
		Long:  "The backend owns settings and environments and serves them to mirrors.",
	}

	cmd.AddCommand(newBackendStartCmd())
	cmd.AddCommand(newBackendStopCmd())
	cmd.AddCommand(newBackendStatusCmd())
	cmd.AddCommand(newBackendEnvCmd())

	return cmd
}

func backendConfig(cmd *cobra.Command) (*config.Config, error) {
	return cli.LoadConfig(cli.GetOptions(cmd))
}

func newBackendStartCmd() *cobra.Command {
	var opts backend.Options
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the backend in the foreground",
		Example: `  envmirror backend start
  envmirror backend start --listen 127.0.0.1:7450 --nats-url nats://127.0.0.1:4222`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := backendConfig(cmd)
			if err != nil {
				return err
			}
			resolved := backend.OptionsFromConfig(cfg)
			if opts.StateFile != "" {
				resolved.StateFile = opts.StateFile
			}
			if opts.Listen != "" {
				resolved.Listen = opts.Listen
			}
			if opts.NATSURL != "" {
				resolved.NATSURL = opts.NATSURL
			}

			logger := logging.NewLogger("envmirror-backend")
			b, err := backend.New(resolved, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := b.Run(ctx); err != nil {
				return fmt.Errorf("backend error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.StateFile, "state-file", "", "State file (default from config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "Also serve HTTP on this TCP address")
	cmd.Flags().StringVar(&opts.NATSURL, "nats-url", "", "Also answer requests from this NATS server")
	return cmd
}

func newBackendStopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			p := pretty(cmd)
			if !running {
				p.Warn("Backend is not running")
				return nil
			}

			if err := process.Terminate(pid, timeout); err != nil {
				return fmt.Errorf("failed to stop backend (pid %d): %w", pid, err)
			}
			p.Success(fmt.Sprintf("Stopped backend (pid %d)", pid))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the backend to exit")
	return cmd
}

// backendInfo is the body of GET /api/info.
type backendInfo struct {
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	StateFile    string    `json:"state_file"`
	Environments int       `json:"environments"`
}

func newBackendStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := backendConfig(cmd)
			if err != nil {
				return err
			}
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			var info *backendInfo
			if running {
				info, err = fetchInfo(cmd.Context(), cfg.Backend.Socket)
				if err != nil {
					cli.GetLogger(cmd).WithError(err).Debug("Backend did not answer /api/info")
				}
			}

			if jsonOutput(cmd) {
				return printJSON(cmd, map[string]interface{}{
					"running": running,
					"pid":     pid,
					"socket":  cfg.Backend.Socket,
					"info":    info,
				})
			}

			p := pretty(cmd)
			if !running {
				p.Warn("Stopped")
				// Non-zero for scripts
				os.Exit(1)
			}
			p.Success("Running")
			p.Field("PID", pid)
			p.Path("Socket", cfg.Backend.Socket)
			if info != nil {
				p.Path("State file", info.StateFile)
				p.Field("Environments", info.Environments)
				p.Field("Uptime", time.Since(info.StartedAt).Round(time.Second))
			}
			return nil
		},
	}
}

func fetchInfo(ctx context.Context, socket string) (*backendInfo, error) {
	client := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/api/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var info backendInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func newBackendEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Edit the environments in the backend state file",
		Long: `Edit the backend state file directly. A running backend notices the
change, reloads the file and notifies its event subscribers.`,
	}

	var props map[string]string
	add := &cobra.Command{
		Use:     "add <id>",
		Short:   "Add an environment",
		Args:    cobra.ExactArgs(1),
		Example: `  envmirror backend env add web --prop name=Web --prop path=$HOME/src/web`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState(cmd)
			if err != nil {
				return err
			}
			values := make(map[models.EnvProperty]string, len(props))
			for k, v := range props {
				values[models.EnvProperty(k)] = v
			}
			if err := st.AddEnv(models.NewEnvSummary(args[0], values), "cli"); err != nil {
				return err
			}
			pretty(cmd).Success(fmt.Sprintf("Added environment '%s'", args[0]))
			return nil
		},
	}
	add.Flags().StringToStringVar(&props, "prop", nil, "Property as name=value (repeatable)")

	rm := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove an environment",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState(cmd)
			if err != nil {
				return err
			}
			if err := st.RemoveEnv(args[0], "cli"); err != nil {
				return err
			}
			pretty(cmd).Success(fmt.Sprintf("Removed environment '%s'", args[0]))
			return nil
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}

func openState(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := backendConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Backend.StateFile)
}
