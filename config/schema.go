package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for envmirror configuration.
// Section schemas are closed; the top level stays open so extension sections
// such as "logging" are accepted.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	// Mirror of Config without the inline Extensions map.
	type baseConfig struct {
		Version   string          `yaml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
		Transport TransportConfig `yaml:"transport,omitempty" jsonschema:"description=How the mirror reaches the backend"`
		Backend   BackendConfig   `yaml:"backend,omitempty" jsonschema:"description=Reference backend settings"`
		Cache     CacheConfig     `yaml:"cache,omitempty" jsonschema:"description=Remote state cache tuning"`
		UI        UIConfig        `yaml:"ui,omitempty" jsonschema:"description=Initial UI channel values"`
	}

	s := r.Reflect(&baseConfig{})
	s.Title = "envmirror configuration"
	s.Description = "Schema for envmirror.yml / envmirror.toml."
	s.Version = "http://json-schema.org/draft-07/schema#"
	s.AdditionalProperties = nil

	return json.MarshalIndent(s, "", "  ")
}
