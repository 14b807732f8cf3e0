// Package remotestate mirrors backend-owned settings and environment summaries.
//
// The Cache holds no authoritative data. Reads are served synchronously from the local
// mirror; writes are sent to the backend first and applied locally only once the backend
// has acknowledged them, so the mirror never runs ahead of confirmed remote state.
package remotestate

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/pkg/filemanager"
	"github.com/grovetools/envmirror/pkg/models"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Cache.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithSerializedWrites makes overlapping writes to the same setting, or to the same
// property of the same environment, run one after another instead of racing.
func WithSerializedWrites() Option {
	return func(c *Cache) {
		c.writes = newKeyedMutex()
	}
}

// Cache is the client-side mirror of backend state.
type Cache struct {
	dial           rpc.DialFunc
	newFileManager filemanager.Factory
	logger         *logrus.Entry
	recorder       Recorder
	writes         *keyedMutex

	mu      sync.RWMutex
	state   State
	backend *rpc.Backend
	// gen is bumped by Close; work started under an older gen must not install state.
	gen uint64

	settings models.Settings

	// envIDs, envSummaries and envSummaryMap always describe the same set in the same
	// order; the slice and the map share their *EnvSummary values.
	envIDs        []string
	envSummaries  []*models.EnvSummary
	envSummaryMap map[string]*models.EnvSummary

	fileManagers map[string]filemanager.Handle
}

// New creates an uninitialized Cache. dial constructs the backend channel during
// Initialize; newFileManager builds per-environment handles on first use.
func New(dial rpc.DialFunc, newFileManager filemanager.Factory, opts ...Option) *Cache {
	c := &Cache{
		dial:           dial,
		newFileManager: newFileManager,
		logger:         logrus.NewEntry(logrus.StandardLogger()),
		recorder:       NoopRecorder{},
		envSummaryMap:  make(map[string]*models.EnvSummary),
		fileManagers:   make(map[string]filemanager.Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the lifecycle state.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Initialize establishes the channel, then refreshes settings, then environment
// summaries. Each step starts only after the previous one succeeded. On failure the
// cache is left in StateFailed and none of its reads should be relied on; calling
// Initialize again retries from the start.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateInitializing:
		c.mu.Unlock()
		return errors.NotReady(StateInitializing.String())
	}
	c.state = StateInitializing
	gen := c.gen
	previous := c.backend
	c.backend = nil
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Channel().Close()
	}

	if err := c.initialize(ctx, gen); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateFailed
		}
		c.mu.Unlock()
		c.logger.WithError(err).Error("Remote state initialization failed")
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return errClosed()
	}
	c.state = StateReady
	envCount := len(c.envIDs)
	c.mu.Unlock()
	c.logger.WithField("environments", envCount).Info("Remote state ready")
	return nil
}

func (c *Cache) initialize(ctx context.Context, gen uint64) error {
	if c.dial == nil {
		return errors.New(errors.ErrCodeInternal, "no channel dialer configured")
	}
	ch, err := c.dial(ctx)
	if err != nil {
		return errors.ChannelFailure("dial", err)
	}
	if err := ch.Init(ctx); err != nil {
		_ = ch.Close()
		return errors.ChannelFailure("init", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = ch.Close()
		return errClosed()
	}
	c.backend = rpc.NewBackend(ch)
	c.mu.Unlock()

	if err := c.RefreshSettings(ctx); err != nil {
		return err
	}
	return c.RefreshEnvSummaries(ctx)
}

func errClosed() error {
	return errors.New(errors.ErrCodeNotReady, "remote state cache was closed during initialization")
}

func (c *Cache) remote() (*rpc.Backend, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.backend == nil {
		return nil, errors.NotReady(c.state.String())
	}
	return c.backend, nil
}

// observe records one remote call and wraps its failure.
func (c *Cache) observe(method rpc.Method, start time.Time, err error) error {
	c.recorder.ObserveCall(method, time.Since(start), err)
	if err != nil {
		return errors.ChannelFailure(string(method), err)
	}
	return nil
}

// RefreshSettings replaces the cached settings wholesale.
func (c *Cache) RefreshSettings(ctx context.Context) error {
	b, err := c.remote()
	if err != nil {
		return err
	}
	start := time.Now()
	settings, err := b.GetSettings(ctx)
	if err := c.observe(rpc.MethodGetSettings, start, err); err != nil {
		return err
	}

	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
	c.logger.WithField("count", len(settings)).Debug("Settings refreshed")
	return nil
}

// Settings returns a copy of the cached settings. It is nil before the first refresh.
func (c *Cache) Settings() models.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Clone()
}

// Setting returns one cached setting. ok is false for names the backend did not send;
// names are not validated against KnownSettings.
func (c *Cache) Setting(name models.Setting) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.settings[name]
	return v, ok
}

// SetSetting writes a setting through to the backend and, once acknowledged,
// into the local cache. A rejected call leaves the cache untouched.
func (c *Cache) SetSetting(ctx context.Context, name models.Setting, value string) error {
	unlock := c.writes.Lock("setting:" + string(name))
	defer unlock()

	b, err := c.remote()
	if err != nil {
		return err
	}
	start := time.Now()
	if err := c.observe(rpc.MethodSetSetting, start, b.SetSetting(ctx, name, value)); err != nil {
		c.logger.WithError(err).WithField("setting", name).Warn("Setting write rejected")
		return err
	}

	c.mu.Lock()
	if c.settings == nil {
		c.settings = make(models.Settings)
	}
	c.settings[name] = value
	c.mu.Unlock()

	c.logger.WithField("setting", name).Debug("Setting written through")
	return nil
}

// EnvIDs returns the environment ids in backend order.
func (c *Cache) EnvIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.envIDs))
	copy(ids, c.envIDs)
	return ids
}

// EnvSummaries returns copies of the environment summaries in backend order.
func (c *Cache) EnvSummaries() []models.EnvSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.EnvSummary, len(c.envSummaries))
	for i, s := range c.envSummaries {
		out[i] = s.Clone()
	}
	return out
}

// EnvSummary returns a copy of one summary. ok is false for unknown ids.
func (c *Cache) EnvSummary(id string) (models.EnvSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.envSummaryMap[id]
	if !ok {
		return models.EnvSummary{}, false
	}
	return s.Clone(), true
}

// SetEnvProperty writes one property of one environment through to the backend and,
// once acknowledged, into the local summary. The environment must be known locally;
// unknown ids fail with UNKNOWN_ENV and unstorable names with INVALID_INPUT before
// anything is sent.
func (c *Cache) SetEnvProperty(ctx context.Context, envID string, name models.EnvProperty, value string) error {
	if !name.Valid() {
		return errors.InvalidProperty(string(name))
	}
	if _, ok := c.EnvSummary(envID); !ok {
		return errors.UnknownEnv(envID)
	}

	unlock := c.writes.Lock("env:" + envID + ":" + string(name))
	defer unlock()

	b, err := c.remote()
	if err != nil {
		return err
	}
	start := time.Now()
	if err := c.observe(rpc.MethodSetEnvProperty, start, b.SetEnvProperty(ctx, envID, name, value)); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"env": envID, "property": name}).
			Warn("Environment property write rejected")
		return err
	}

	c.mu.Lock()
	summary, ok := c.envSummaryMap[envID]
	if ok {
		summary.Set(name, value)
	}
	c.mu.Unlock()

	if !ok {
		// A refresh dropped the environment while the write was in flight.
		c.logger.WithField("env", envID).Warn("Environment vanished before property write could be applied")
		return errors.UnknownEnv(envID)
	}
	c.logger.WithFields(logrus.Fields{"env": envID, "property": name}).Debug("Environment property written through")
	return nil
}

// RefreshEnvSummaries fetches all summaries and replaces the id list, the summary list
// and the id index in one step. File managers of environments that still exist are
// kept; those of vanished environments are dropped and closed if they are io.Closers.
func (c *Cache) RefreshEnvSummaries(ctx context.Context) error {
	b, err := c.remote()
	if err != nil {
		return err
	}
	start := time.Now()
	fetched, err := b.GetEnvSummaries(ctx)
	if err := c.observe(rpc.MethodGetEnvSummaries, start, err); err != nil {
		return err
	}

	envIDs := make([]string, 0, len(fetched))
	envSummaries := make([]*models.EnvSummary, 0, len(fetched))
	envSummaryMap := make(map[string]*models.EnvSummary, len(fetched))
	for i := range fetched {
		summary := fetched[i].Clone()
		if _, dup := envSummaryMap[summary.ID]; dup {
			return errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("backend returned environment '%s' more than once", summary.ID)).
				WithDetail("envId", summary.ID)
		}
		envIDs = append(envIDs, summary.ID)
		envSummaries = append(envSummaries, &summary)
		envSummaryMap[summary.ID] = &summary
	}

	var evicted []filemanager.Handle
	c.mu.Lock()
	fileManagers := make(map[string]filemanager.Handle, len(c.fileManagers))
	for id, h := range c.fileManagers {
		if _, ok := envSummaryMap[id]; ok {
			fileManagers[id] = h
		} else {
			evicted = append(evicted, h)
		}
	}
	c.envIDs = envIDs
	c.envSummaries = envSummaries
	c.envSummaryMap = envSummaryMap
	c.fileManagers = fileManagers
	c.mu.Unlock()

	c.recorder.SetEnvironments(len(envIDs))
	c.recorder.SetFileManagers(len(fileManagers))
	for _, h := range evicted {
		c.recorder.IncFileManagerEvictions()
		closeHandle(h, c.logger)
	}

	c.logger.WithFields(logrus.Fields{"environments": len(envIDs), "evicted": len(evicted)}).
		Debug("Environment summaries refreshed")
	return nil
}

// FileManager returns the file manager of an environment, creating it on first use.
// It fails with ENV_NOT_FOUND when the environment is not in the cache. The factory
// runs without the lock held; when two callers race, the first handle stored wins
// and the other is closed.
func (c *Cache) FileManager(envID string) (filemanager.Handle, error) {
	c.mu.RLock()
	gen := c.gen
	h, ok := c.fileManagers[envID]
	summary, known := c.envSummaryMap[envID]
	var params filemanager.Params
	if !ok && known {
		params.EnvSummary = summary.Clone()
	}
	c.mu.RUnlock()
	if ok {
		return h, nil
	}
	if !known {
		return nil, errors.EnvNotFound(envID)
	}
	if c.newFileManager == nil {
		return nil, errors.New(errors.ErrCodeInternal, "no file manager factory configured")
	}

	built, err := c.newFileManager(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal,
			fmt.Sprintf("failed to create file manager for environment '%s'", envID)).
			WithDetail("envId", envID)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		closeHandle(built, c.logger)
		return nil, errors.NotReady(StateUninitialized.String())
	}
	if winner, ok := c.fileManagers[envID]; ok {
		c.mu.Unlock()
		closeHandle(built, c.logger)
		return winner, nil
	}
	if _, ok := c.envSummaryMap[envID]; !ok {
		c.mu.Unlock()
		closeHandle(built, c.logger)
		return nil, errors.EnvNotFound(envID)
	}
	c.fileManagers[envID] = built
	count := len(c.fileManagers)
	c.mu.Unlock()

	c.recorder.SetFileManagers(count)
	c.logger.WithField("env", envID).Debug("File manager created")
	return built, nil
}

// Close releases every file manager and the backend channel. The cache returns to
// StateUninitialized.
func (c *Cache) Close() error {
	c.mu.Lock()
	handles := make([]filemanager.Handle, 0, len(c.fileManagers))
	for _, h := range c.fileManagers {
		handles = append(handles, h)
	}
	c.fileManagers = make(map[string]filemanager.Handle)
	backend := c.backend
	c.backend = nil
	c.state = StateUninitialized
	c.gen++
	c.mu.Unlock()

	for _, h := range handles {
		closeHandle(h, c.logger)
	}
	if backend != nil {
		return backend.Channel().Close()
	}
	return nil
}

func closeHandle(h filemanager.Handle, logger *logrus.Entry) {
	closer, ok := h.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.WithError(err).WithField("env", h.EnvID()).Warn("Failed to close file manager")
	}
}
