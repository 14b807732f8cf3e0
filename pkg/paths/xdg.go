// Package paths provides XDG-compliant path resolution for envmirror.
//
// Resolution order:
// 1. ENVMIRROR_HOME (portable root) → $ENVMIRROR_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/envmirror
// 3. Platform defaults → ~/.config/envmirror, ~/.local/state/envmirror
package paths

import (
	"os"
	"path/filepath"
)

const appName = "envmirror"

func homeOverride(sub string) string {
	if home := os.Getenv("ENVMIRROR_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	return ""
}

func xdgDir(envVar string, fallback ...string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	parts := append([]string{homeDir}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

// ConfigDir returns the configuration directory.
func ConfigDir() string {
	if dir := homeOverride("config"); dir != "" {
		return dir
	}
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the directory for runtime state: backend data, pid file, logs.
func StateDir() string {
	if dir := homeOverride("state"); dir != "" {
		return dir
	}
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if dir := homeOverride("run"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the backend unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "envmirrord.sock")
}

// PidFilePath returns the path to the backend PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "envmirrord.pid")
}

// BackendStatePath returns the default backend state file.
func BackendStatePath() string {
	return filepath.Join(StateDir(), "backend.yml")
}

// EnsureDirs creates all envmirror directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
