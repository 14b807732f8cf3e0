package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/envmirror/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytesYAML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
transport:
  kind: http
  url: http://127.0.0.1:7450
  timeout: 2s
cache:
  serialize_writes: true
ui:
  env_sort: status
  env_view: grid
logging:
  level: debug
`), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Transport.Kind)
	assert.Equal(t, "http://127.0.0.1:7450", cfg.Transport.URL)
	assert.True(t, cfg.Cache.SerializeWrites)
	assert.Equal(t, "status", cfg.UI.EnvSort)
	assert.Equal(t, "grid", cfg.UI.EnvView)
	assert.Contains(t, cfg.Extensions, "logging")

	// defaults
	assert.NotEmpty(t, cfg.Transport.Socket)
	assert.Equal(t, "envmirror.rpc", cfg.Transport.Subject)
	assert.Equal(t, cfg.Transport.Socket, cfg.Backend.Socket)
}

func TestLoadFromBytesTOML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
version = "1.0"

[transport]
kind = "nats"
nats_url = "nats://127.0.0.1:4222"
subject = "team.envs"

[monitoring]
interval = 30
`), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, "nats", cfg.Transport.Kind)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Transport.NATSURL)
	assert.Equal(t, "team.envs", cfg.Transport.Subject)
	assert.Equal(t, "team.envs", cfg.Backend.Subject)

	var mon struct {
		Interval int `yaml:"interval"`
	}
	require.NoError(t, cfg.UnmarshalExtension("monitoring", &mon))
	assert.Equal(t, 30, mon.Interval)
}

func TestLoadFromBytesRejects(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
		code   errors.ErrorCode
	}{
		{"bad yaml", "transport: [", FormatYAML, errors.ErrCodeConfigInvalid},
		{"bad toml", "transport = [", FormatTOML, errors.ErrCodeConfigInvalid},
		{"unknown kind", "transport:\n  kind: carrier-pigeon\n", FormatYAML, errors.ErrCodeConfigValidation},
		{"unknown transport key", "transport:\n  proxy: x\n", FormatYAML, errors.ErrCodeConfigValidation},
		{"bad timeout", "transport:\n  timeout: soon\n", FormatYAML, errors.ErrCodeConfigValidation},
		{"bad view", "ui:\n  env_view: cards\n", FormatYAML, errors.ErrCodeConfigValidation},
		{"zero timeout", "transport:\n  timeout: 0s\n", FormatYAML, errors.ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err), err.Error())
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ENVMIRROR_TEST_URL", "ws://backend:9000/ws")

	cfg, err := LoadFromBytes([]byte(`
transport:
  kind: websocket
  url: ${ENVMIRROR_TEST_URL}
  timeout: ${ENVMIRROR_TEST_TIMEOUT:-5s}
`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "ws://backend:9000/ws", cfg.Transport.URL)
	assert.Equal(t, "5s", cfg.Transport.Timeout)
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ENVMIRROR_HOME", filepath.Join(root, "home"))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	_, err := FindConfigFile(nested)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))

	path := filepath.Join(root, "a", "envmirror.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = \"1.0\"\n"), 0644))

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestLoadLayered(t *testing.T) {
	root := t.TempDir()
	home := filepath.Join(root, "home")
	t.Setenv("ENVMIRROR_HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0755))

	global := `
transport:
  kind: unix
  timeout: 20s
logging:
  level: warn
  report_caller: true
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "envmirror.yml"), []byte(global), 0644))

	project := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(project, 0755))
	projectFile := filepath.Join(project, "envmirror.yml")
	require.NoError(t, os.WriteFile(projectFile, []byte(`
transport:
  kind: http
  url: http://localhost:7450
logging:
  level: debug
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "envmirror.override.toml"), []byte(`
[ui]
env_view = "list"
`), 0644))

	cfg, err := LoadLayered(projectFile)
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Transport.Kind)
	assert.Equal(t, "20s", cfg.Transport.Timeout, "global value survives a partial project section")
	assert.Equal(t, "list", cfg.UI.EnvView)

	var logCfg struct {
		Level        string `yaml:"level"`
		ReportCaller bool   `yaml:"report_caller"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.True(t, logCfg.ReportCaller)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"version", "transport", "backend", "cache", "ui"} {
		assert.Contains(t, props, key)
	}
	transport := props["transport"].(map[string]interface{})
	assert.Contains(t, transport["properties"], "nats_url")
}
