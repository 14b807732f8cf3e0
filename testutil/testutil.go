// Package testutil holds helpers shared by envmirror tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/envmirror/pkg/models"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// ShortTempDir creates a temporary directory with a short path, suitable for
// unix sockets, and removes it when the test ends.
func ShortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "em")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// Env builds an environment summary from name=value property pairs.
func Env(id string, props ...string) models.EnvSummary {
	env := models.NewEnvSummary(id, nil)
	for i := 0; i+1 < len(props); i += 2 {
		env.Set(models.EnvProperty(props[i]), props[i+1])
	}
	return env
}

// WriteStateFile writes a backend state file holding settings and envs.
func WriteStateFile(t *testing.T, path string, settings models.Settings, envs ...models.EnvSummary) {
	t.Helper()
	doc := struct {
		Settings models.Settings     `yaml:"settings"`
		Envs     []models.EnvSummary `yaml:"envs"`
	}{Settings: settings, Envs: envs}

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// WriteFiles creates files below root from a path to content map.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}
