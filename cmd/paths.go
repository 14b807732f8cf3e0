package cmd

import (
	"fmt"

	"github.com/grovetools/envmirror/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput represents the XDG-compliant paths used by envmirror.
type PathsOutput struct {
	ConfigDir  string `json:"config_dir"`
	StateDir   string `json:"state_dir"`
	RuntimeDir string `json:"runtime_dir"`
	Socket     string `json:"socket"`
	PidFile    string `json:"pid_file"`
	StateFile  string `json:"state_file"`
}

func NewPathsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the XDG-compliant paths used by envmirror",
		Long: `Print the XDG-compliant paths used by envmirror.

The paths follow the XDG Base Directory Specification, or live below
$ENVMIRROR_HOME when it is set:
- config_dir: global envmirror.yml
- state_dir: backend state file, pid file and logs
- runtime_dir: backend socket`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir:  paths.ConfigDir(),
				StateDir:   paths.StateDir(),
				RuntimeDir: paths.RuntimeDir(),
				Socket:     paths.SocketPath(),
				PidFile:    paths.PidFilePath(),
				StateFile:  paths.BackendStatePath(),
			}

			if jsonOutput(cmd) {
				return printJSON(cmd, output)
			}
			p := pretty(cmd)
			p.Path("Config", output.ConfigDir)
			p.Path("State", output.StateDir)
			p.Path("Runtime", output.RuntimeDir)
			p.Path("Socket", output.Socket)
			p.Path("PID file", output.PidFile)
			p.Path("State file", output.StateFile)
			return nil
		},
	}

	return cmd
}

// printPath is used by `config` to show where a value came from.
func printPath(cmd *cobra.Command, label, path string) {
	if path == "" {
		path = "(none)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s: %s\n", label, path)
}
