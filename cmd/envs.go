package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/internal/app"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/notify"
	"github.com/grovetools/envmirror/state"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewEnvsCmd returns the `envs` command group.
func NewEnvsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "envs",
		Aliases: []string{"env"},
		Short:   "List and edit environments",
	}
	m := newMirrorCommand(cmd)

	cmd.AddCommand(newEnvsListCmd(m))
	cmd.AddCommand(newEnvsShowCmd(m))
	cmd.AddCommand(newEnvsSetCmd(m))
	return cmd
}

func newEnvsListCmd(m *mirrorCommand) *cobra.Command {
	var sortFlag, viewFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List environments",
		Long: `List the environments known to the backend.

The initial sort order and view come from the ui section of envmirror.yml.
--sort and --view override them and are remembered for later runs.`,
		Example: `  envmirror envs list
  envmirror envs list --sort status --view grid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				if err := applyListPrefs(cmd, a, sortFlag, viewFlag); err != nil {
					return err
				}
				return renderEnvs(cmd, a)
			})
		},
	}
	cmd.Flags().StringVar(&sortFlag, "sort", "", "Sort order: name, status or label")
	cmd.Flags().StringVar(&viewFlag, "view", "", "View: list-columns, list or grid")
	return cmd
}

// applyListPrefs sets the sort and view channels from the flags, falling back
// to the values remembered from earlier runs. Flag values are remembered.
func applyListPrefs(cmd *cobra.Command, a *app.App, sortFlag, viewFlag string) error {
	logger := cli.GetLogger(cmd)
	if err := applyPref(a, logger, notify.ChannelEnvSort, state.KeyEnvSort, "sort order", sortFlag, notify.ParseSortOrder); err != nil {
		return err
	}
	return applyPref(a, logger, notify.ChannelEnvView, state.KeyEnvView, "view", viewFlag, notify.ParseView)
}

func applyPref[T ~string](a *app.App, logger *logrus.Entry, ch notify.Channel, key, what, flag string, parse func(string) (T, bool)) error {
	value, remember := flag, flag != ""
	if !remember {
		value, _ = state.GetString(key)
	}
	if value == "" {
		return nil
	}

	parsed, ok := parse(value)
	if !ok {
		if remember {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown %s '%s'", what, value))
		}
		logger.WithField(key, value).Debug("Ignoring remembered value")
		return nil
	}
	if err := a.Notify.Set(ch, parsed); err != nil {
		return err
	}
	if remember {
		if err := state.Set(key, string(parsed)); err != nil {
			logger.WithError(err).Warnf("Failed to remember %s", what)
		}
	}
	return nil
}

func renderEnvs(cmd *cobra.Command, a *app.App) error {
	order, err := notify.GetAs[notify.SortOrder](a.Notify, notify.ChannelEnvSort)
	if err != nil {
		return err
	}
	view, err := notify.GetAs[notify.View](a.Notify, notify.ChannelEnvView)
	if err != nil {
		return err
	}

	envs := a.Cache.EnvSummaries()
	sortEnvs(envs, order)

	if jsonOutput(cmd) {
		return printJSON(cmd, envs)
	}
	if len(envs) == 0 {
		pretty(cmd).Warn("No environments")
		return nil
	}

	out := cmd.OutOrStdout()
	switch view {
	case notify.ViewList:
		for _, env := range envs {
			fmt.Fprintf(out, "%s\t%s\n", env.ID, prop(env, models.EnvPropertyName))
		}
	case notify.ViewGrid:
		renderGrid(out, envs)
	default:
		rows := make([][]string, 0, len(envs))
		for _, env := range envs {
			rows = append(rows, []string{
				env.ID,
				prop(env, models.EnvPropertyName),
				prop(env, models.EnvPropertyStatus),
				prop(env, models.EnvPropertyLabel),
				prop(env, models.EnvPropertyPath),
			})
		}
		pretty(cmd).Table([]string{"ID", "NAME", "STATUS", "LABEL", "PATH"}, rows)
	}
	return nil
}

// sortEnvs orders envs by the property the sort order names. Ties and
// missing values fall back to the id.
func sortEnvs(envs []models.EnvSummary, order notify.SortOrder) {
	key := models.EnvPropertyName
	switch order {
	case notify.SortByStatus:
		key = models.EnvPropertyStatus
	case notify.SortByLabel:
		key = models.EnvPropertyLabel
	}
	sort.SliceStable(envs, func(i, j int) bool {
		a, b := prop(envs[i], key), prop(envs[j], key)
		if a != b {
			if a == "" {
				return false
			}
			if b == "" {
				return true
			}
			return a < b
		}
		return envs[i].ID < envs[j].ID
	})
}

func renderGrid(out io.Writer, envs []models.EnvSummary) {
	cell := 0
	for _, env := range envs {
		if n := len(env.ID); n > cell {
			cell = n
		}
	}
	cell += 2
	perRow := 80 / cell
	if perRow < 1 {
		perRow = 1
	}
	var line strings.Builder
	for i, env := range envs {
		line.WriteString(env.ID + strings.Repeat(" ", cell-len(env.ID)))
		if (i+1)%perRow == 0 || i == len(envs)-1 {
			fmt.Fprintln(out, strings.TrimRight(line.String(), " "))
			line.Reset()
		}
	}
}

func newEnvsShowCmd(m *mirrorCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show every property of an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				env, ok := a.Cache.EnvSummary(args[0])
				if !ok {
					return errors.EnvNotFound(args[0])
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, env)
				}
				p := pretty(cmd)
				p.Header(env.ID)
				for _, name := range env.PropertyNames() {
					value, _ := env.Get(name)
					if name == models.EnvPropertyPath {
						p.Path(string(name), value)
						continue
					}
					p.Field(string(name), value)
				}
				return nil
			})
		},
	}
}

func newEnvsSetCmd(m *mirrorCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <property> <value>",
		Short: "Write one environment property through to the backend",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.run(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Cache.SetEnvProperty(ctx, args[0], models.EnvProperty(args[1]), args[2]); err != nil {
					return err
				}
				if !jsonOutput(cmd) {
					pretty(cmd).Success(fmt.Sprintf("%s.%s = %s", args[0], args[1], args[2]))
				}
				return nil
			})
		},
	}
}

func prop(env models.EnvSummary, name models.EnvProperty) string {
	v, _ := env.Get(name)
	return v
}
