package filemanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/envmirror/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envWithRoot(id, root string) Params {
	return Params{EnvSummary: models.NewEnvSummary(id, map[models.EnvProperty]string{
		models.EnvPropertyPath: root,
	})}
}

func TestListHonoursIgnoreFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.log\ncache\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "debug.log"), []byte("noise"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cache"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "util.go"), []byte("package src"), 0644))

	m, err := New(envWithRoot("a", root), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", m.EnvID())

	entries, err := m.List(context.Background(), "")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"main.go", "src"}, names)

	sub, err := m.List(context.Background(), "src")
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "src/util.go", sub[0].Path)
}

func TestListStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "inside.txt"), nil, 0644))

	m, err := New(envWithRoot("a", root), nil)
	require.NoError(t, err)

	entries, err := m.List(context.Background(), "../../..")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inside.txt", entries[0].Name)
}

func TestManagerWithoutPath(t *testing.T) {
	m, err := New(Params{EnvSummary: models.NewEnvSummary("bare", nil)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", m.Root())

	_, err = m.List(context.Background(), "")
	assert.Error(t, err)
	_, err = m.Watch(context.Background())
	assert.Error(t, err)
}

func TestWatchRejectsSecondWatcher(t *testing.T) {
	root := t.TempDir()
	m, err := New(envWithRoot("a", root), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = m.Watch(ctx)
	require.NoError(t, err)
	_, err = m.Watch(ctx)
	assert.Error(t, err)

	require.NoError(t, m.Close())
}
