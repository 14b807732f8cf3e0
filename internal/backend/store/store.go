package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Store is the backend's state. It is thread-safe and supports pub/sub for
// change notifications.
type Store struct {
	mu          sync.RWMutex
	path        string
	state       State
	subscribers map[chan Update]struct{}
}

// Open loads the state file at path. A missing file yields DefaultState; the
// file is created on the first mutation.
func Open(path string) (*Store, error) {
	state, err := readState(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		state = DefaultState()
	}
	return &Store{
		path:        path,
		state:       state,
		subscribers: make(map[chan Update]struct{}),
	}, nil
}

// NewMemory creates a store that is never persisted.
func NewMemory(state State) *Store {
	return &Store{
		state:       state.Clone(),
		subscribers: make(map[chan Update]struct{}),
	}
}

// DefaultState seeds the known settings from the environment.
func DefaultState() State {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	return State{
		Settings: models.Settings{
			models.SettingTheme:        "dark",
			models.SettingDefaultShell: shell,
			models.SettingEditor:       editor,
			models.SettingEnvRoot:      "",
		},
	}
}

// Path returns the state file path, or "" for memory stores.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Settings returns a copy of the settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.state.Settings.Clone()
	if out == nil {
		out = models.Settings{}
	}
	return out
}

// EnvSummaries returns copies of every environment in stored order.
func (s *Store) EnvSummaries() []models.EnvSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EnvSummary, len(s.state.Envs))
	for i, env := range s.state.Envs {
		out[i] = env.Clone()
	}
	return out
}

// SetSetting stores a setting value.
func (s *Store) SetSetting(name models.Setting, value, source string) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "setting name is required")
	}
	return s.mutate(Update{Type: UpdateSettings, Source: source, Key: string(name)}, func(st *State) error {
		if st.Settings == nil {
			st.Settings = models.Settings{}
		}
		st.Settings[name] = value
		return nil
	})
}

// SetEnvProperty stores one property of an existing environment.
func (s *Store) SetEnvProperty(envID string, name models.EnvProperty, value, source string) error {
	if !name.Valid() {
		return errors.InvalidProperty(string(name))
	}
	return s.mutate(Update{Type: UpdateEnvs, Source: source, Key: envID}, func(st *State) error {
		i := indexOf(st.Envs, envID)
		if i < 0 {
			return errors.UnknownEnv(envID)
		}
		st.Envs[i].Set(name, value)
		return nil
	})
}

// AddEnv appends a new environment.
func (s *Store) AddEnv(env models.EnvSummary, source string) error {
	if env.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "environment id is required")
	}
	return s.mutate(Update{Type: UpdateEnvs, Source: source, Key: env.ID}, func(st *State) error {
		if indexOf(st.Envs, env.ID) >= 0 {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("environment '%s' already exists", env.ID)).
				WithDetail("envId", env.ID)
		}
		st.Envs = append(st.Envs, env.Clone())
		return nil
	})
}

// RemoveEnv deletes an environment.
func (s *Store) RemoveEnv(envID, source string) error {
	return s.mutate(Update{Type: UpdateEnvs, Source: source, Key: envID}, func(st *State) error {
		i := indexOf(st.Envs, envID)
		if i < 0 {
			return errors.UnknownEnv(envID)
		}
		st.Envs = append(st.Envs[:i], st.Envs[i+1:]...)
		return nil
	})
}

// mutate applies fn to a copy of the state, persists it, then publishes it.
// On any error the stored state is unchanged.
func (s *Store) mutate(u Update, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.state = next
	s.broadcast(u)
	return nil
}

// Reload re-reads the state file and publishes what changed. It returns
// whether anything changed.
func (s *Store) Reload() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	loaded, err := readState(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settingsChanged := !reflect.DeepEqual(normalizeSettings(s.state.Settings), normalizeSettings(loaded.Settings))
	envsChanged := !reflect.DeepEqual(normalizeEnvs(s.state.Envs), normalizeEnvs(loaded.Envs))
	if !settingsChanged && !envsChanged {
		return false, nil
	}
	s.state = loaded
	if settingsChanged {
		s.broadcast(Update{Type: UpdateSettings, Source: "file"})
	}
	if envsChanged {
		s.broadcast(Update{Type: UpdateEnvs, Source: "file"})
	}
	return true, nil
}

// WatchFile reloads the store whenever its file is written by another
// process. It blocks until ctx is done.
func (s *Store) WatchFile(ctx context.Context, logger *logrus.Entry) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create state watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic renames are seen.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			changed, err := s.Reload()
			if err != nil {
				logger.WithError(err).Warn("Failed to reload state file")
				continue
			}
			if changed {
				logger.WithField("path", s.path).Info("State file changed on disk")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("State watcher error")
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// broadcast must be called with s.mu held.
func (s *Store) broadcast(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send so a slow client cannot stall the backend
		}
	}
}

func (s *Store) save(state State) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "encode state")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create state directory")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "write state file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "replace state file")
	}
	return nil
}

func readState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, errors.Wrap(err, errors.ErrCodeConfigInvalid, "parse state file").
			WithDetail("path", path)
	}
	seen := make(map[string]bool, len(state.Envs))
	for _, env := range state.Envs {
		if seen[env.ID] {
			return State{}, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("duplicate environment '%s' in state file", env.ID)).
				WithDetail("path", path)
		}
		seen[env.ID] = true
	}
	return state, nil
}

func indexOf(envs []models.EnvSummary, id string) int {
	for i, env := range envs {
		if env.ID == id {
			return i
		}
	}
	return -1
}

func normalizeSettings(s models.Settings) models.Settings {
	if len(s) == 0 {
		return models.Settings{}
	}
	return s
}

func normalizeEnvs(envs []models.EnvSummary) []models.EnvSummary {
	out := make([]models.EnvSummary, len(envs))
	for i, env := range envs {
		out[i] = env.Clone()
	}
	return out
}
