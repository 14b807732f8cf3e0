package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOperations(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ENVMIRROR_HOME", home)

	t.Run("load missing file", func(t *testing.T) {
		state, err := Load()
		require.NoError(t, err)
		assert.Empty(t, state)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, Set(KeyEnvSort, "status"))
		got, err := GetString(KeyEnvSort)
		require.NoError(t, err)
		assert.Equal(t, "status", got)
		assert.FileExists(t, filepath.Join(home, "state", "ui.yml"))
	})

	t.Run("non-string value reads as empty", func(t *testing.T) {
		require.NoError(t, Set("count", 3))
		got, err := GetString("count")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, Delete(KeyEnvSort))
		got, err := GetString(KeyEnvSort)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Setenv("ENVMIRROR_HOME", t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(Path()), 0755))
	require.NoError(t, os.WriteFile(Path(), []byte("- [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}
