package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/notify"
	"github.com/grovetools/envmirror/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot() *cobra.Command {
	root := cli.NewStandardCommand("envmirror", "test")
	root.AddCommand(NewSettingsCmd(), NewEnvsCmd(), NewFilesCmd(), NewBackendCmd(), NewConfigCmd(), NewPathsCmd())
	return root
}

// setup writes a config that serves every call in-process from a state file
// below a fresh ENVMIRROR_HOME.
func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("ENVMIRROR_HOME", home)

	cfgPath := filepath.Join(home, "envmirror.yml")
	cfg := "transport:\n  kind: local\nbackend:\n  state_file: " + filepath.Join(home, "backend.yml") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	return cfgPath
}

func run(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestEnvsLifecycle(t *testing.T) {
	cfgPath := setup(t)
	envRoot := t.TempDir()

	run(t, cfgPath, "backend", "env", "add", "e1", "--prop", "name=One", "--prop", "path="+envRoot)
	run(t, cfgPath, "backend", "env", "add", "e2", "--prop", "name=Two")

	var envs []models.EnvSummary
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "envs", "list", "--json")), &envs))
	require.Len(t, envs, 2)
	assert.Equal(t, "e1", envs[0].ID)

	run(t, cfgPath, "envs", "set", "e2", "label", "x")

	var env models.EnvSummary
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "envs", "show", "e2", "--json")), &env))
	label, _ := env.Get(models.EnvPropertyLabel)
	assert.Equal(t, "x", label)

	out := run(t, cfgPath, "envs", "list", "--view", "list")
	assert.Contains(t, out, "e1\tOne")

	run(t, cfgPath, "backend", "env", "rm", "e2")
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "envs", "list", "--json")), &envs))
	assert.Len(t, envs, 1)
}

func TestEnvsSetUnknownEnv(t *testing.T) {
	cfgPath := setup(t)
	root := newRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "envs", "set", "nope", "label", "x"})
	assert.Error(t, root.Execute())
}

func TestSettings(t *testing.T) {
	cfgPath := setup(t)

	run(t, cfgPath, "settings", "set", "theme", "light")
	assert.Equal(t, "light\n", run(t, cfgPath, "settings", "get", "theme"))

	out := run(t, cfgPath, "settings", "get")
	assert.Contains(t, out, "SETTING")
	assert.Contains(t, out, "light")
}

func TestFilesLs(t *testing.T) {
	cfgPath := setup(t)
	envRoot := t.TempDir()
	testutil.WriteFiles(t, envRoot, map[string]string{
		"main.go":    "package main\n",
		"debug.log":  "x",
		".envignore": "*.log\n",
		"pkg/doc.go": "package pkg\n",
	})

	run(t, cfgPath, "backend", "env", "add", "e1", "--prop", "path="+envRoot)

	out := run(t, cfgPath, "files", "ls", "e1")
	assert.Contains(t, out, "main.go")
	assert.Contains(t, out, "pkg/")
	assert.NotContains(t, out, "debug.log")
}

func TestPaths(t *testing.T) {
	cfgPath := setup(t)
	home := filepath.Dir(cfgPath)

	var out PathsOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "paths", "--json")), &out))
	assert.True(t, strings.HasPrefix(out.Socket, home))
	assert.Equal(t, filepath.Join(home, "state", "backend.yml"), out.StateFile)
}

func TestConfigShowsTransport(t *testing.T) {
	cfgPath := setup(t)
	out := run(t, cfgPath, "config")
	assert.Contains(t, out, "kind: local")
	assert.Contains(t, out, "# Source: "+cfgPath)

	schema := run(t, cfgPath, "config", "--schema")
	assert.Contains(t, schema, `"transport"`)
}

func TestSortEnvs(t *testing.T) {
	envs := []models.EnvSummary{
		models.NewEnvSummary("c", map[models.EnvProperty]string{models.EnvPropertyStatus: "running"}),
		models.NewEnvSummary("a", nil),
		models.NewEnvSummary("b", map[models.EnvProperty]string{models.EnvPropertyStatus: "idle"}),
	}

	sortEnvs(envs, notify.SortByStatus)
	assert.Equal(t, []string{"b", "c", "a"}, []string{envs[0].ID, envs[1].ID, envs[2].ID})

	sortEnvs(envs, notify.SortByName)
	assert.Equal(t, []string{"a", "b", "c"}, []string{envs[0].ID, envs[1].ID, envs[2].ID})
}

func TestRenderGrid(t *testing.T) {
	var out bytes.Buffer
	renderGrid(&out, []models.EnvSummary{
		models.NewEnvSummary("one", nil),
		models.NewEnvSummary("two", nil),
	})
	assert.Equal(t, "one  two\n", out.String())
}

func TestEnvsListRemembersSort(t *testing.T) {
	cfgPath := setup(t)
	run(t, cfgPath, "backend", "env", "add", "a", "--prop", "status=running")
	run(t, cfgPath, "backend", "env", "add", "b", "--prop", "status=idle")

	run(t, cfgPath, "envs", "list", "--sort", "status")

	var envs []models.EnvSummary
	require.NoError(t, json.Unmarshal([]byte(run(t, cfgPath, "envs", "list", "--json")), &envs))
	require.Len(t, envs, 2)
	assert.Equal(t, "b", envs[0].ID)
}
