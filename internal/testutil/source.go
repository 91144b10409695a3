package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

// Source is an in-memory index.ModelSource whose contents and failure mode
// tests can change between rebuilds.
type Source struct {
	mu     sync.Mutex
	models []compiler.RawModel
	err    error
	calls  int
}

// NewSource creates a source holding models.
func NewSource(models ...compiler.RawModel) *Source {
	return &Source{models: models}
}

// ListEnabledModels returns the enabled models, or the configured error.
func (s *Source) ListEnabledModels(context.Context) ([]compiler.RawModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]compiler.RawModel, 0, len(s.models))
	for _, m := range s.models {
		if m.Status == "" || m.Status == string(ir.StatusEnabled) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Set replaces the models.
func (s *Source) Set(models ...compiler.RawModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = models
}

// Fail makes subsequent listings return err. Fail(nil) restores the source.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the number of listings served.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ParseModels parses YAML model source or fails the test.
func ParseModels(t testing.TB, src string) []compiler.RawModel {
	t.Helper()
	models, err := compiler.ParseYAML([]byte(src))
	require.NoError(t, err)
	return models
}

// MessageSink records set_message output per model.
type MessageSink struct {
	mu       sync.Mutex
	messages []string
}

// AddMessage implements plugin.MessageSink.
func (m *MessageSink) AddMessage(modelID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, modelID+": "+message)
}

// Messages returns the recorded "model: message" lines.
func (m *MessageSink) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}
