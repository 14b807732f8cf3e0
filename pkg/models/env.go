package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EnvProperty names a mutable string property of an environment summary.
type EnvProperty string

const (
	EnvPropertyName   EnvProperty = "name"
	EnvPropertyLabel  EnvProperty = "label"
	EnvPropertyPath   EnvProperty = "path"
	EnvPropertyStatus EnvProperty = "status"
	EnvPropertyNotes  EnvProperty = "notes"
)

// idKey is the wire key that carries the environment id.
const idKey = "id"

// Valid reports whether p can be stored on a summary. The empty name and the
// id key cannot: the flat wire form has no room for them.
func (p EnvProperty) Valid() bool {
	return p != "" && p != idKey
}

// EnvSummary describes one backend-managed environment.
// On the wire it is a flat object: {"id": "...", "<property>": "..."}.
type EnvSummary struct {
	ID         string
	Properties map[EnvProperty]string
}

// NewEnvSummary builds a summary from an id and a property map.
func NewEnvSummary(id string, props map[EnvProperty]string) EnvSummary {
	s := EnvSummary{ID: id, Properties: make(map[EnvProperty]string, len(props))}
	for k, v := range props {
		s.Properties[k] = v
	}
	return s
}

// Get returns a property value and whether it is set.
func (s EnvSummary) Get(prop EnvProperty) (string, bool) {
	v, ok := s.Properties[prop]
	return v, ok
}

// Set assigns a property, allocating the map on first use.
func (s *EnvSummary) Set(prop EnvProperty, value string) {
	if s.Properties == nil {
		s.Properties = make(map[EnvProperty]string)
	}
	s.Properties[prop] = value
}

// Clone returns a deep copy.
func (s EnvSummary) Clone() EnvSummary {
	return NewEnvSummary(s.ID, s.Properties)
}

// PropertyNames returns the set property names in lexical order.
func (s EnvSummary) PropertyNames() []EnvProperty {
	names := make([]EnvProperty, 0, len(s.Properties))
	for k := range s.Properties {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// MarshalJSON flattens the properties next to the id.
func (s EnvSummary) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(s.Properties)+1)
	for k, v := range s.Properties {
		flat[string(k)] = v
	}
	flat[idKey] = s.ID
	return json.Marshal(flat)
}

// UnmarshalJSON reads a flat object. Every key other than "id" becomes a property.
func (s *EnvSummary) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decode env summary: %w", err)
	}
	id, ok := flat[idKey]
	if !ok || id == "" {
		return fmt.Errorf("decode env summary: missing id")
	}
	delete(flat, idKey)
	s.ID = id
	s.Properties = make(map[EnvProperty]string, len(flat))
	for k, v := range flat {
		s.Properties[EnvProperty(k)] = v
	}
	return nil
}

// MarshalYAML uses the same flat shape as JSON.
func (s EnvSummary) MarshalYAML() (interface{}, error) {
	flat := make(map[string]string, len(s.Properties)+1)
	for k, v := range s.Properties {
		flat[string(k)] = v
	}
	flat[idKey] = s.ID
	return flat, nil
}

// UnmarshalYAML reads the flat shape written by MarshalYAML.
func (s *EnvSummary) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var flat map[string]string
	if err := unmarshal(&flat); err != nil {
		return err
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return err
	}
	return s.UnmarshalJSON(data)
}

// SetEnvPropertyRequest is the payload of the setEnvProperty call.
type SetEnvPropertyRequest struct {
	EnvID string      `json:"envId"`
	Name  EnvProperty `json:"name"`
	Value string      `json:"value"`
}
