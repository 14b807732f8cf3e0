// Package state persists small per-user preferences between CLI runs, such
// as the last environment sort order and view.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/envmirror/pkg/paths"
	"gopkg.in/yaml.v3"
)

// Keys used by the envs command.
const (
	KeyEnvSort = "env-sort"
	KeyEnvView = "env-view"
)

// State is a generic map of preference keys to values.
type State map[string]interface{}

// Path returns the preferences file below the state directory.
func Path() string {
	return filepath.Join(paths.StateDir(), "ui.yml")
}

// Load reads the preferences file. A missing file yields an empty state.
func Load() (State, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(State), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if state == nil {
		state = make(State)
	}
	return state, nil
}

// Save writes the preferences file, creating the state directory.
func Save(state State) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// GetString returns the string stored under key, or "" when the key is
// missing or holds another type.
func GetString(key string) (string, error) {
	state, err := Load()
	if err != nil {
		return "", err
	}
	str, _ := state[key].(string)
	return str, nil
}

// Set stores value under key.
func Set(key string, value interface{}) error {
	state, err := Load()
	if err != nil {
		return err
	}
	state[key] = value
	return Save(state)
}

// Delete removes key.
func Delete(key string) error {
	state, err := Load()
	if err != nil {
		return err
	}
	delete(state, key)
	return Save(state)
}
