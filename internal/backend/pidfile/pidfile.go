// Package pidfile guards the backend against running twice.
package pidfile

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grovetools/envmirror/pkg/process"
)

// ErrAlreadyRunning is returned by Acquire when a live backend owns the file.
var ErrAlreadyRunning = stderrors.New("envmirror backend is already running")

// Acquire records the current pid in path. A file naming a live process other
// than this one is an ErrAlreadyRunning; a stale or unreadable one is replaced.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for backend pid file %s: %w", path, err)
	}

	if owner, err := Read(path); err == nil {
		if owner != os.Getpid() && process.IsAlive(owner) {
			return fmt.Errorf("%w (pid %d, see %s)", ErrAlreadyRunning, owner, path)
		}
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("record backend pid in %s: %w", path, err)
	}
	return nil
}

// Release removes path when it still names this process. Files taken over by
// another backend are left alone.
func Release(path string) error {
	owner, err := Read(path)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case owner != os.Getpid():
		return nil
	}
	return os.Remove(path)
}

// Read returns the backend pid recorded in path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("backend pid file %s is corrupt: %w", path, err)
	}
	return pid, nil
}

// IsRunning reports whether the backend recorded in path is alive, and its pid.
// A missing file means no backend.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return process.IsAlive(pid), pid, nil
}
