package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("ENVMIRROR_TEST_DIR", "/srv/envs")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/src/web", filepath.Join(home, "src", "web")},
		{"$ENVMIRROR_TEST_DIR/api", "/srv/envs/api"},
		{"/tmp/../var", "/var"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Expand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.yml")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	link := filepath.Join(dir, "b.yml")
	require.NoError(t, os.Symlink(file, link))

	assert.True(t, SamePath(file, link))
	assert.True(t, SamePath(filepath.Join(dir, "x", "..", "missing"), filepath.Join(dir, "missing")))
	assert.False(t, SamePath(file, filepath.Join(dir, "missing")))
}
