package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

// NormalizeStatus maps the authored status to the stored one. An empty
// status means enabled.
func NormalizeStatus(s string) (ir.Status, error) {
	switch ir.Status(s) {
	case "", ir.StatusEnabled:
		return ir.StatusEnabled, nil
	case ir.StatusDisabled:
		return ir.StatusDisabled, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// MarshalModel encodes raw for storage and returns it with its record.
// The record's Revision is left to the caller.
func MarshalModel(raw compiler.RawModel) (string, ModelRecord, error) {
	if raw.ID == "" {
		return "", ModelRecord{}, fmt.Errorf("marshal model: id is required")
	}
	status, err := NormalizeStatus(raw.Status)
	if err != nil {
		return "", ModelRecord{}, fmt.Errorf("marshal model %s: %w", raw.ID, err)
	}
	raw.Status = string(status)
	hash, err := raw.Hash()
	if err != nil {
		return "", ModelRecord{}, fmt.Errorf("marshal model %s: %w", raw.ID, err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", ModelRecord{}, fmt.Errorf("marshal model %s: %w", raw.ID, err)
	}
	return string(data), ModelRecord{
		ID:     raw.ID,
		Label:  raw.Label,
		Status: status,
		Hash:   hash,
	}, nil
}

// UnmarshalModel decodes a stored model and applies the stored status.
func UnmarshalModel(data string, status ir.Status) (compiler.RawModel, error) {
	models, err := compiler.ParseJSON([]byte(data))
	if err != nil {
		return compiler.RawModel{}, fmt.Errorf("unmarshal model: %w", err)
	}
	if len(models) != 1 {
		return compiler.RawModel{}, fmt.Errorf("unmarshal model: expected one model, got %d", len(models))
	}
	raw := models[0]
	raw.Status = string(status)
	return raw, nil
}

// withStatus re-encodes a stored model under a new status.
func withStatus(data string, status ir.Status) (string, string, error) {
	raw, err := UnmarshalModel(data, status)
	if err != nil {
		return "", "", err
	}
	out, rec, err := MarshalModel(raw)
	if err != nil {
		return "", "", err
	}
	return out, rec.Hash, nil
}
