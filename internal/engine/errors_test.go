package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RuntimeError
		want string
	}{
		{
			name: "model and node",
			err:  &RuntimeError{Code: ErrCodePluginError, Message: "bad config", ModelID: "m", NodeID: "n"},
			want: "PLUGIN_ERROR: bad config (model=m, node=n)",
		},
		{
			name: "model only",
			err:  &RuntimeError{Code: ErrCodeUnknownModel, Message: "missing", ModelID: "m"},
			want: "UNKNOWN_MODEL: missing (model=m)",
		},
		{
			name: "bare",
			err:  &RuntimeError{Code: ErrCodeLoopLimit, Message: "too many"},
			want: "LOOP_LIMIT_EXCEEDED: too many",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestRuntimeError_Classification(t *testing.T) {
	cause := errors.New("connection refused")
	pluginErr := fmt.Errorf("node: %w", newPluginError("m", "n", cause))
	panicErr := newPanicError("m", "n", "nil map")

	assert.True(t, IsPluginError(pluginErr))
	assert.True(t, IsPluginError(panicErr))
	assert.ErrorIs(t, pluginErr, cause)
	assert.Equal(t, "panic: nil map", panicErr.Message)
	assert.Equal(t, "plugin error: panic: nil map", abortReason(panicErr))

	assert.True(t, IsUnknownModel(&RuntimeError{Code: ErrCodeUnknownModel}))
	assert.False(t, IsUnknownModel(pluginErr))
	assert.False(t, IsPluginError(errors.New("other")))
}
