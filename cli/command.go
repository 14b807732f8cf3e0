// Package cli holds the shared cobra plumbing for envmirror commands:
// standard flags, loggers, styled help and error reporting.
package cli

import (
	"os"
	"time"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommandOptions holds common options for envmirror commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// TransportFlags override the transport section of the configuration.
type TransportFlags struct {
	Kind    string
	Socket  string
	URL     string
	NATSURL string
	Timeout time.Duration
}

// NewStandardCommand creates a new command with standard envmirror flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to envmirror.yml config file")

	SetStyledHelp(cmd)

	return cmd
}

// BindTransportFlags registers the transport override flags on fs.
func BindTransportFlags(fs *pflag.FlagSet, f *TransportFlags) {
	fs.StringVar(&f.Kind, "transport", "", "Transport override: auto, unix, http, websocket, nats, or local")
	fs.StringVar(&f.Socket, "socket", "", "Backend unix socket")
	fs.StringVar(&f.URL, "url", "", "Backend URL for http or websocket transports")
	fs.StringVar(&f.NATSURL, "nats-url", "", "NATS server URL")
	fs.DurationVar(&f.Timeout, "timeout", 0, "Per-request timeout")
}

// Apply copies every flag that was set onto cfg.
func (f TransportFlags) Apply(cfg *config.Config) {
	if f.Kind != "" {
		cfg.Transport.Kind = f.Kind
	}
	if f.Socket != "" {
		cfg.Transport.Socket = f.Socket
	}
	if f.URL != "" {
		cfg.Transport.URL = f.URL
	}
	if f.NATSURL != "" {
		cfg.Transport.NATSURL = f.NATSURL
	}
	if f.Timeout > 0 {
		cfg.Transport.Timeout = f.Timeout.String()
	}
}

// GetLogger creates a logger based on command flags
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("envmirror-cli")

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
		entry.Logger.SetOutput(logging.GetGlobalOutput())
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return entry
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig loads the file named by --config, or discovers one from the
// working directory. Without any file the defaults are returned.
func LoadConfig(opts CommandOptions) (*config.Config, error) {
	if opts.ConfigFile != "" {
		return config.LoadLayered(opts.ConfigFile)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path, err := config.FindConfigFile(cwd)
	if err != nil {
		// No config file found, that's okay
		return config.Default(), nil
	}
	return config.LoadLayered(path)
}
