package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardCommandFlags(t *testing.T) {
	cmd := NewStandardCommand("envmirror", "mirror")
	require.NoError(t, cmd.ParseFlags([]string{"-v", "--json", "--config", "/tmp/envmirror.yml"}))

	opts := GetOptions(cmd)
	assert.True(t, opts.Verbose)
	assert.True(t, opts.JSONOutput)
	assert.Equal(t, "/tmp/envmirror.yml", opts.ConfigFile)
}

func TestTransportFlagsApply(t *testing.T) {
	var flags TransportFlags
	cmd := &cobra.Command{Use: "x"}
	BindTransportFlags(cmd.Flags(), &flags)
	require.NoError(t, cmd.ParseFlags([]string{"--transport", "http", "--url", "http://127.0.0.1:7450", "--timeout", "3s"}))

	cfg := config.Default()
	flags.Apply(cfg)

	assert.Equal(t, "http", cfg.Transport.Kind)
	assert.Equal(t, "http://127.0.0.1:7450", cfg.Transport.URL)
	assert.Equal(t, "3s", cfg.Transport.Timeout)
	d, err := cfg.TransportTimeout()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENVMIRROR_HOME", filepath.Join(dir, "home"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := LoadConfig(CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Transport.Kind)

	path := filepath.Join(dir, "envmirror.yml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  kind: local\n"), 0644))
	cfg, err = LoadConfig(CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Transport.Kind)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config not found", errors.ConfigNotFound("/x"), "Configuration not found"},
		{"unknown env", errors.UnknownEnv("zz"), "Environment 'zz' does not exist"},
		{"channel", errors.ChannelFailure("getSettings", fmt.Errorf("boom")), "Backend request failed"},
		{"plain", fmt.Errorf("plain failure"), "Error: plain failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &ErrorHandler{Out: &buf}
			assert.Equal(t, tt.err, h.Handle(tt.err))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	var buf bytes.Buffer
	h := &ErrorHandler{Out: &buf, Verbose: true}
	h.Handle(errors.UnknownEnv("zz"))
	assert.Contains(t, buf.String(), `"code": "UNKNOWN_ENV"`)
}

func TestRenderHelp(t *testing.T) {
	root := NewStandardCommand("envmirror", "Mirror backend environments")
	sub := &cobra.Command{Use: "envs", Short: "List environments", Run: func(*cobra.Command, []string) {}}
	sub.Flags().String("sort", "name", "Sort order")
	root.AddCommand(sub)

	var buf bytes.Buffer
	renderHelp(&buf, root, 78)
	out := buf.String()
	assert.Contains(t, out, "ENVMIRROR")
	assert.Contains(t, out, "COMMANDS")
	assert.Contains(t, out, "envs")

	buf.Reset()
	renderHelp(&buf, sub, 78)
	assert.Contains(t, buf.String(), "--sort")
	assert.Contains(t, buf.String(), "(default: name)")
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four", 9)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), 9)
	}
	assert.Equal(t, "keep\nbreaks", wrapText("keep\nbreaks", 40))
}

func TestTerminalWidthBounds(t *testing.T) {
	w := TerminalWidth()
	assert.GreaterOrEqual(t, w, minWidth)
	assert.LessOrEqual(t, w, maxWidth)
}
