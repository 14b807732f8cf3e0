package config

import (
	"os"
	"path/filepath"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/pkg/paths"
	"github.com/grovetools/envmirror/util/pathutil"
)

// overrideNames are looked up next to the project file.
var overrideNames = []string{
	"envmirror.override.yml",
	"envmirror.override.yaml",
	"envmirror.override.toml",
	".envmirror.override.yml",
	".envmirror.override.yaml",
}

// LoadLayered loads configuration in three layers: the global file in the
// user config directory, projectFile, then any override file beside it.
// Later layers win; nested sections are merged key by key.
func LoadLayered(projectFile string) (*Config, error) {
	var layers []string

	if global := firstExisting(paths.ConfigDir()); global != "" && !pathutil.SamePath(global, projectFile) {
		layers = append(layers, global)
	}
	layers = append(layers, projectFile)

	dir := filepath.Dir(projectFile)
	for _, name := range overrideNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			layers = append(layers, path)
		}
	}

	merged := make(map[string]interface{})
	for _, path := range layers {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.ConfigNotFound(path)
			}
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
				WithDetail("path", path)
		}
		raw, err := parseDocument(data, FormatFor(path))
		if err != nil {
			return nil, withPath(err, path)
		}
		merged = mergeMaps(merged, raw)
	}

	cfg, err := decodeDocument(merged)
	if err != nil {
		return nil, withPath(err, projectFile)
	}
	return cfg, nil
}

// mergeMaps merges override into base. Maps present on both sides are merged
// recursively; every other value is replaced.
func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if baseMap, ok := result[k].(map[string]interface{}); ok {
			if overrideMap, ok := v.(map[string]interface{}); ok {
				result[k] = mergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func withPath(err error, path string) error {
	if envErr, ok := err.(*errors.EnvError); ok {
		return envErr.WithDetail("path", path)
	}
	return err
}
