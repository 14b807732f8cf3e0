package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/app"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/spf13/cobra"
)

// NewSettingsCmd returns the `settings` command group.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write backend settings",
	}
	m := newMirrorCommand(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get [name]",
		Short: "Print one setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					value, ok := a.Cache.Setting(models.Setting(args[0]))
					if !ok {
						return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("setting '%s' is not set", args[0])).
							WithDetail("setting", args[0])
					}
					if jsonOutput(cmd) {
						return printJSON(cmd, map[string]string{args[0]: value})
					}
					fmt.Fprintln(cmd.OutOrStdout(), value)
					return nil
				}

				settings := a.Cache.Settings()
				if jsonOutput(cmd) {
					return printJSON(cmd, settings)
				}
				names := make([]string, 0, len(settings))
				for name := range settings {
					names = append(names, string(name))
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, settings[models.Setting(name)]})
				}
				pretty(cmd).Table([]string{"SETTING", "VALUE"}, rows)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <value>",
		Short: "Write a setting through to the backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Cache.SetSetting(ctx, models.Setting(args[0]), args[1]); err != nil {
					return err
				}
				if !jsonOutput(cmd) {
					pretty(cmd).Success(fmt.Sprintf("%s = %s", args[0], args[1]))
				}
				return nil
			})
		},
	})

	return cmd
}
