package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/app"
	"github.com/grovetools/envmirror/pkg/filemanager"
	"github.com/spf13/cobra"
)

// NewFilesCmd returns the `files` command group.
func NewFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse the files of an environment",
	}
	m := newMirrorCommand(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "ls <env> [dir]",
		Short: "List a directory below the environment root",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				fm, err := managerFor(a, args[0])
				if err != nil {
					return err
				}
				dir := "."
				if len(args) == 2 {
					dir = args[1]
				}
				entries, err := fm.List(ctx, dir)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, entries)
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					name := e.Path
					size := strconv.FormatInt(e.Size, 10)
					if e.IsDir {
						name += "/"
						size = "-"
					}
					rows = append(rows, []string{name, size, e.ModTime.Format("2006-01-02 15:04")})
				}
				pretty(cmd).Table([]string{"PATH", "SIZE", "MODIFIED"}, rows)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "watch <env>",
		Short: "Print changes under the environment root until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				fm, err := managerFor(a, args[0])
				if err != nil {
					return err
				}
				events, err := fm.Watch(ctx)
				if err != nil {
					return err
				}
				if !jsonOutput(cmd) {
					pretty(cmd).Path("Watching", fm.Root())
				}
				for ev := range events {
					if jsonOutput(cmd) {
						if err := printJSON(cmd, ev); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", ev.Op, ev.Path)
				}
				return nil
			})
		},
	})

	return cmd
}

// managerFor returns the default file manager of an environment.
func managerFor(a *app.App, envID string) (*filemanager.Manager, error) {
	h, err := a.Cache.FileManager(envID)
	if err != nil {
		return nil, err
	}
	fm, ok := h.(*filemanager.Manager)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, fmt.Sprintf("file manager of '%s' cannot browse files", envID))
	}
	return fm, nil
}
