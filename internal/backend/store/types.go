// Package store holds the reference backend's authoritative state: settings
// and managed environments, persisted to a YAML file.
package store

import (
	"github.com/grovetools/envmirror/pkg/models"
)

// State is everything the backend owns.
type State struct {
	Settings models.Settings     `yaml:"settings" json:"settings"`
	Envs     []models.EnvSummary `yaml:"envs" json:"envs"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{Settings: s.Settings.Clone()}
	if s.Envs != nil {
		out.Envs = make([]models.EnvSummary, len(s.Envs))
		for i, env := range s.Envs {
			out.Envs[i] = env.Clone()
		}
	}
	return out
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdateSettings UpdateType = "settings"
	UpdateEnvs     UpdateType = "envs"
)

// Update represents a change to the state.
type Update struct {
	Type   UpdateType `json:"type"`
	Source string     `json:"source"`        // "rpc", "cli" or "file"
	Key    string     `json:"key,omitempty"` // setting name or env id, when a single entry changed
}
