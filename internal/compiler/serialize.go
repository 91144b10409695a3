package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/eca/internal/ir"
)

// Marshal serializes a compiled model as canonical JSON.
func Marshal(m *ir.Model) ([]byte, error) {
	// Go through encoding/json first so struct tags decide field names, then
	// canonicalize the generic form.
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal model %s: %w", m.ID, err)
	}
	var generic ir.Map
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("marshal model %s: %w", m.ID, err)
	}
	out, err := ir.MarshalCanonical(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal model %s: %w", m.ID, err)
	}
	return out, nil
}

// Unmarshal decodes a model serialized by Marshal.
func Unmarshal(data []byte) (*ir.Model, error) {
	var m ir.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("unmarshal model: missing id")
	}
	return &m, nil
}
