package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eca/internal/ir"
)

// RawModel is a model as authored: YAML, JSON, CUE or a store row. It is
// the input of Compile and the only form that is hashed.
type RawModel struct {
	ID         string         `json:"id" yaml:"id" validate:"required,max=128"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"`
	Status     string         `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=enabled disabled"`
	Events     []RawEvent     `json:"events,omitempty" yaml:"events,omitempty" validate:"dive"`
	Conditions []RawCondition `json:"conditions,omitempty" yaml:"conditions,omitempty" validate:"dive"`
	Actions    []RawAction    `json:"actions,omitempty" yaml:"actions,omitempty" validate:"dive"`
	Gateways   []RawGateway   `json:"gateways,omitempty" yaml:"gateways,omitempty" validate:"dive"`
	Successors []RawSuccessor `json:"successors,omitempty" yaml:"successors,omitempty" validate:"dive"`
}

// RawEvent is an authored event node. Priority is kept untyped until
// compilation so malformed values can be reported instead of failing decode.
type RawEvent struct {
	ID       string         `json:"id" yaml:"id" validate:"required"`
	Plugin   string         `json:"plugin" yaml:"plugin" validate:"required"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Priority any            `json:"priority,omitempty" yaml:"priority,omitempty"`
}

type RawCondition struct {
	ID      string         `json:"id" yaml:"id" validate:"required"`
	Plugin  string         `json:"plugin" yaml:"plugin" validate:"required"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Negated bool           `json:"negated,omitempty" yaml:"negated,omitempty"`
}

type RawAction struct {
	ID     string         `json:"id" yaml:"id" validate:"required"`
	Plugin string         `json:"plugin" yaml:"plugin" validate:"required"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

type RawGateway struct {
	ID string `json:"id" yaml:"id" validate:"required"`
}

type RawSuccessor struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source" validate:"required"`
	Target string `json:"target" yaml:"target" validate:"required"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty" validate:"omitempty,oneof=then else"`
}

// Content returns the canonical value of the model, the input of ModelHash.
func (r *RawModel) Content() (ir.Map, error) {
	// Round-trip through JSON so the hash sees exactly the authored fields,
	// with json.Number keeping integers exact.
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", r.ID, err)
	}
	var content ir.Map
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("model %s: %w", r.ID, err)
	}
	return content, nil
}

// Hash returns the content hash of the model.
func (r *RawModel) Hash() (string, error) {
	content, err := r.Content()
	if err != nil {
		return "", err
	}
	return ir.ModelHash(content)
}

// modelFile is the multi-model document form: a top-level "models" list.
type modelFile struct {
	Models []RawModel `json:"models" yaml:"models"`
}

// ParseYAML decodes one model, or a "models" list, from YAML.
func ParseYAML(data []byte) ([]RawModel, error) {
	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(file.Models) > 0 {
		return file.Models, nil
	}
	var single RawModel
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if single.ID == "" && len(single.Events) == 0 {
		return nil, nil
	}
	return []RawModel{single}, nil
}

// ParseJSON decodes one model, or a "models" list, from JSON.
func ParseJSON(data []byte) ([]RawModel, error) {
	var file modelFile
	if err := decodeJSONNumbers(data, &file); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if len(file.Models) > 0 {
		return file.Models, nil
	}
	var single RawModel
	if err := decodeJSONNumbers(data, &single); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if single.ID == "" && len(single.Events) == 0 {
		return nil, nil
	}
	return []RawModel{single}, nil
}

func decodeJSONNumbers(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

// SupportedExtension reports whether path has a model file extension.
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".cue":
		return true
	}
	return false
}

// ParseFile reads models from a .yaml, .yml, .json or .cue file.
func ParseFile(path string) ([]RawModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseBytes(path, data)
}

// ParseBytes parses data according to the extension of name.
func ParseBytes(name string, data []byte) ([]RawModel, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	case ".cue":
		return ParseCUE(name, data)
	default:
		return nil, fmt.Errorf("%s: unsupported model file extension", name)
	}
}

// FromModel converts a compiled model back into authored form.
func FromModel(m *ir.Model) *RawModel {
	raw := &RawModel{
		ID:     m.ID,
		Label:  m.Label,
		Status: string(m.Status),
	}
	for _, e := range m.Events {
		raw.Events = append(raw.Events, RawEvent{
			ID:       e.ID,
			Plugin:   e.Plugin,
			Config:   configToGo(e.Config),
			Priority: e.Priority,
		})
	}
	for _, c := range m.Conditions {
		raw.Conditions = append(raw.Conditions, RawCondition{
			ID:      c.ID,
			Plugin:  c.Plugin,
			Config:  configToGo(c.Config),
			Negated: c.Negated,
		})
	}
	for _, a := range m.Actions {
		raw.Actions = append(raw.Actions, RawAction{
			ID:     a.ID,
			Plugin: a.Plugin,
			Config: configToGo(a.Config),
		})
	}
	for _, g := range m.Gateways {
		raw.Gateways = append(raw.Gateways, RawGateway{ID: g.ID})
	}
	for _, s := range m.Successors {
		raw.Successors = append(raw.Successors, RawSuccessor{
			ID:     s.ID,
			Source: s.Source,
			Target: s.Target,
			Label:  string(s.Label),
		})
	}
	return raw
}

func configToGo(m ir.Map) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return ir.ToGo(m).(map[string]any)
}
