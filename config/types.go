package config

import (
	"fmt"
	"time"

	"github.com/grovetools/envmirror/errors"
	"github.com/grovetools/envmirror/pkg/notify"
	"github.com/grovetools/envmirror/pkg/paths"
	"github.com/grovetools/envmirror/pkg/rpc"
	"github.com/mitchellh/mapstructure"
)

// Config is the envmirror configuration file.
type Config struct {
	Version   string          `yaml:"version" toml:"version"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	UI        UIConfig        `yaml:"ui" toml:"ui"`

	// Extensions holds every other top-level section (e.g. "logging").
	// Decode one with UnmarshalExtension.
	Extensions map[string]interface{} `yaml:",inline" toml:"-"`
}

// TransportConfig describes how the mirror reaches the backend.
type TransportConfig struct {
	Kind    string `yaml:"kind,omitempty" toml:"kind,omitempty" jsonschema:"enum=auto,enum=unix,enum=http,enum=websocket,enum=nats,enum=local,description=Transport used to reach the backend"`
	Socket  string `yaml:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket of the backend (unix and auto)"`
	URL     string `yaml:"url,omitempty" toml:"url,omitempty" jsonschema:"description=Base URL (http) or ws:// URL (websocket)"`
	NATSURL string `yaml:"nats_url,omitempty" toml:"nats_url,omitempty" jsonschema:"description=NATS server URL"`
	Subject string `yaml:"subject,omitempty" toml:"subject,omitempty" jsonschema:"description=NATS subject prefix"`
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty" jsonschema:"description=Per-request timeout (Go duration)"`
}

// BackendConfig configures the reference backend.
type BackendConfig struct {
	StateFile string `yaml:"state_file,omitempty" toml:"state_file,omitempty" jsonschema:"description=YAML file holding backend settings and environments"`
	Socket    string `yaml:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket the backend listens on"`
	Listen    string `yaml:"listen,omitempty" toml:"listen,omitempty" jsonschema:"description=Optional TCP address to serve HTTP and WebSocket on"`
	NATSURL   string `yaml:"nats_url,omitempty" toml:"nats_url,omitempty" jsonschema:"description=Optional NATS server to answer requests from"`
	Subject   string `yaml:"subject,omitempty" toml:"subject,omitempty" jsonschema:"description=NATS subject prefix"`
}

// CacheConfig tunes the remote state cache.
type CacheConfig struct {
	SerializeWrites bool `yaml:"serialize_writes,omitempty" toml:"serialize_writes,omitempty" jsonschema:"description=Run overlapping writes to the same key one after another"`
}

// UIConfig sets the initial values of the UI notification channels.
type UIConfig struct {
	EnvSort string `yaml:"env_sort,omitempty" toml:"env_sort,omitempty" jsonschema:"enum=name,enum=status,enum=label,description=Initial sort order of the environment list"`
	EnvView string `yaml:"env_view,omitempty" toml:"env_view,omitempty" jsonschema:"enum=list-columns,enum=list,enum=grid,description=Initial environment list view"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = string(rpc.KindAuto)
	}
	if c.Transport.Socket == "" {
		c.Transport.Socket = paths.SocketPath()
	}
	if c.Transport.Subject == "" {
		c.Transport.Subject = rpc.DefaultSubject
	}
	if c.Transport.Timeout == "" {
		c.Transport.Timeout = "10s"
	}
	if c.Backend.StateFile == "" {
		c.Backend.StateFile = paths.BackendStatePath()
	}
	if c.Backend.Socket == "" {
		c.Backend.Socket = c.Transport.Socket
	}
	if c.Backend.Subject == "" {
		c.Backend.Subject = c.Transport.Subject
	}
	if c.UI.EnvSort == "" {
		c.UI.EnvSort = string(notify.SortByName)
	}
	if c.UI.EnvView == "" {
		c.UI.EnvView = string(notify.ViewListColumns)
	}
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	switch rpc.Kind(c.Transport.Kind) {
	case rpc.KindAuto, rpc.KindUnix, rpc.KindHTTP, rpc.KindWebSocket, rpc.KindNATS, rpc.KindLocal:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown transport kind '%s'", c.Transport.Kind)).
			WithDetail("field", "transport.kind")
	}
	if _, err := c.TransportTimeout(); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("transport.timeout: %v", err)).
			WithDetail("field", "transport.timeout")
	}
	if _, ok := notify.ParseSortOrder(c.UI.EnvSort); !ok {
		return errors.ConfigInvalid(fmt.Sprintf("unknown sort order '%s'", c.UI.EnvSort)).
			WithDetail("field", "ui.env_sort")
	}
	if _, ok := notify.ParseView(c.UI.EnvView); !ok {
		return errors.ConfigInvalid(fmt.Sprintf("unknown view '%s'", c.UI.EnvView)).
			WithDetail("field", "ui.env_view")
	}
	return nil
}

// TransportTimeout parses Transport.Timeout.
func (c *Config) TransportTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Transport.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded file into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct, honouring `yaml` tags.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
