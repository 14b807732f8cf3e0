// Package filemanager provides per-environment file access.
//
// The mirror treats a file manager as an opaque Handle built from exactly one input, the
// environment summary. Manager is the default implementation: it browses the directory
// named by the environment's "path" property, honouring a .envignore file, and can watch
// that directory for changes.
package filemanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/util/pathutil"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"
)

// IgnoreFileName is read from the environment root to exclude entries.
const IgnoreFileName = ".envignore"

// Params carries the only input a file manager is built from.
type Params struct {
	EnvSummary models.EnvSummary
}

// Handle is an opaque per-environment resource.
type Handle interface {
	EnvID() string
}

// Factory builds a Handle for one environment.
type Factory func(p Params) (Handle, error)

// Entry is one directory entry below the environment root.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"` // slash-separated, relative to the root
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Event is a change observed under the environment root.
type Event struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// Manager is the default Handle.
type Manager struct {
	envID   string
	root    string
	matcher *patternmatcher.PatternMatcher
	logger  *logrus.Entry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewFactory returns a Factory producing Managers that log through logger.
func NewFactory(logger *logrus.Entry) Factory {
	return func(p Params) (Handle, error) {
		return New(p, logger)
	}
}

// New builds a Manager for the environment in p.
func New(p Params, logger *logrus.Entry) (*Manager, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		envID:  p.EnvSummary.ID,
		logger: logger.WithField("env", p.EnvSummary.ID),
	}

	root, ok := p.EnvSummary.Get(models.EnvPropertyPath)
	if !ok || root == "" {
		// Environments without a path still get a handle; listing reports the problem.
		return m, nil
	}
	expanded, err := pathutil.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s of '%s': %w", models.EnvPropertyPath, m.envID, err)
	}
	m.root = expanded

	patterns, err := readIgnoreFile(filepath.Join(m.root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	if len(patterns) > 0 {
		pm, err := patternmatcher.New(patterns)
		if err != nil {
			return nil, fmt.Errorf("invalid %s in %s: %w", IgnoreFileName, m.root, err)
		}
		m.matcher = pm
	}
	return m, nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return patterns, nil
}

// EnvID returns the environment this manager serves.
func (m *Manager) EnvID() string {
	return m.envID
}

// Root returns the environment directory, or "" if the environment has no path.
func (m *Manager) Root() string {
	return m.root
}

// resolve maps a root-relative path to an absolute one that stays inside the root.
func (m *Manager) resolve(rel string) (string, string, error) {
	if m.root == "" {
		return "", "", fmt.Errorf("environment '%s' has no %s property", m.envID, models.EnvPropertyPath)
	}
	clean := filepath.Clean("/" + filepath.FromSlash(rel))
	clean = strings.TrimPrefix(clean, string(filepath.Separator))
	return filepath.Join(m.root, clean), filepath.ToSlash(clean), nil
}

func (m *Manager) ignored(rel string) bool {
	if m.matcher == nil || rel == "" || rel == "." {
		return false
	}
	matched, err := m.matcher.MatchesOrParentMatches(rel)
	if err != nil {
		m.logger.WithError(err).Debugf("Ignore match failed for %s", rel)
		return false
	}
	return matched
}

// List returns the entries of the directory rel (relative to the root), skipping
// anything excluded by the ignore file.
func (m *Manager) List(ctx context.Context, rel string) ([]Entry, error) {
	dir, relDir, err := m.resolve(rel)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entryRel := de.Name()
		if relDir != "" && relDir != "." {
			entryRel = relDir + "/" + de.Name()
		}
		if de.Name() == IgnoreFileName || m.ignored(entryRel) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    entryRel,
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// Watch streams changes directly under the root until ctx is cancelled.
// Only one watch may be active per manager.
func (m *Manager) Watch(ctx context.Context) (<-chan Event, error) {
	if m.root == "" {
		return nil, fmt.Errorf("environment '%s' has no %s property", m.envID, models.EnvPropertyPath)
	}

	m.mu.Lock()
	if m.watcher != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("environment '%s' is already being watched", m.envID)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := watcher.Add(m.root); err != nil {
		m.mu.Unlock()
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", m.root, err)
	}
	m.watcher = watcher
	m.mu.Unlock()

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer m.stopWatch(watcher)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				rel, err := filepath.Rel(m.root, ev.Name)
				if err != nil {
					continue
				}
				rel = filepath.ToSlash(rel)
				if m.ignored(rel) {
					continue
				}
				select {
				case events <- Event{Path: rel, Op: ev.Op.String()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Errorf("Watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (m *Manager) stopWatch(w *fsnotify.Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher == w {
		m.watcher = nil
	}
	w.Close()
}

// Close stops an active watch.
func (m *Manager) Close() error {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}
