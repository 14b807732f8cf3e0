package cmd

import (
	"fmt"
	"os"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCmd() *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration",
		Long: `Shows the configuration after merging its layers:
1. Global config (~/.config/envmirror/envmirror.yml)
2. Project config (envmirror.yml, found by walking up from the current directory)
3. Override file (envmirror.override.yml next to the project config)
Defaults are applied last. This is useful for debugging configuration issues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schema {
				data, err := config.GenerateSchema()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			opts := cli.GetOptions(cmd)
			source := opts.ConfigFile
			if source == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get current directory: %w", err)
				}
				source, _ = config.FindConfigFile(cwd)
			}

			cfg, err := cli.LoadConfig(opts)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, cfg)
			}

			printPath(cmd, "Source", source)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "Print the JSON schema of envmirror.yml instead")
	return cmd
}
