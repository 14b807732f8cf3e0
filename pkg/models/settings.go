// Package models defines the data shared between the mirror, its transports and the backend.
package models

// Setting names one entry of the backend-owned settings.
type Setting string

const (
	SettingTheme        Setting = "theme"
	SettingDefaultShell Setting = "default-shell"
	SettingEditor       Setting = "editor"
	SettingEnvRoot      Setting = "env-root"
)

// KnownSettings lists the settings the backend is expected to serve.
var KnownSettings = []Setting{
	SettingTheme,
	SettingDefaultShell,
	SettingEditor,
	SettingEnvRoot,
}

// Settings maps setting names to their string values.
type Settings map[Setting]string

// Clone returns an independent copy. A nil receiver yields nil.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SetSettingRequest is the payload of the setSetting call.
type SetSettingRequest struct {
	Name  Setting `json:"name"`
	Value string  `json:"value"`
}
