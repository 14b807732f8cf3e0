package logging

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// Config defines the "logging" section of envmirror.yml.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the ENVMIRROR_LOG_LEVEL environment variable.
	Level string `yaml:"level" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=warning,enum=error,enum=fatal,enum=panic"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	// Can be enabled with ENVMIRROR_LOG_CALLER=true.
	ReportCaller bool `yaml:"report_caller"`

	// File configures logging to a file.
	File FileSinkConfig `yaml:"file"`

	// Format configures the appearance of the log output.
	Format FormatConfig `yaml:"format"`

	// ComponentFiltering silences components.
	ComponentFiltering ComponentFilter `yaml:"component_filtering"`
}

// FileSinkConfig configures the file logging sink.
type FileSinkConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the full path to the log file. Defaults to
	// <state dir>/logs/<component>-<date>.log.
	Path   string `yaml:"path"`
	Format string `yaml:"format,omitempty" jsonschema:"enum=text,enum=json"` // "text" (default) or "json"
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset string `yaml:"preset" jsonschema:"enum=default,enum=simple,enum=json"`
	// DisableTimestamp disables the timestamp from the "default" and "simple" formats.
	DisableTimestamp bool `yaml:"disable_timestamp"`
	// DisableComponent disables the component name from the "default" and "simple" formats.
	DisableComponent bool `yaml:"disable_component"`
	// StructuredToStderr controls when structured logs are sent to stderr.
	// Can be "auto" (default), "always", or "never".
	StructuredToStderr string `yaml:"structured_to_stderr" jsonschema:"enum=auto,enum=always,enum=never"`
}

// ComponentFilter lists components to show or hide. Only wins over Hide.
type ComponentFilter struct {
	Only []string `yaml:"only"`
	Hide []string `yaml:"hide"`
}

// Allows reports whether component may log.
func (f ComponentFilter) Allows(component string) bool {
	if len(f.Only) > 0 {
		for _, c := range f.Only {
			if c == component {
				return true
			}
		}
		return false
	}
	for _, c := range f.Hide {
		if c == component {
			return false
		}
	}
	return true
}
