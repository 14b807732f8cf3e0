package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ENVMIRROR_HOME", home)

	assert.Equal(t, filepath.Join(home, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(home, "state"), StateDir())
	assert.Equal(t, filepath.Join(home, "run", "envmirrord.sock"), SocketPath())
	assert.Equal(t, filepath.Join(home, "state", "backend.yml"), BackendStatePath())
	assert.NoError(t, EnsureDirs())
}

func TestXDGVariables(t *testing.T) {
	t.Setenv("ENVMIRROR_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_RUNTIME_DIR", "")

	assert.Equal(t, "/xdg/config/envmirror", ConfigDir())
	assert.Equal(t, "/xdg/state/envmirror", StateDir())
	assert.Equal(t, "/xdg/state/envmirror", RuntimeDir())
	assert.Equal(t, "/xdg/state/envmirror/envmirrord.pid", PidFilePath())
}
