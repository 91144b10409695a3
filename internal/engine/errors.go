package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a failure detected while walking a model.
//
// Runtime errors never escape Dispatch. They are converted into the terminal
// state of the affected invocation and logged:
//   - Plugin error: a condition or action returned an error or panicked
//   - Loop limit: the node-visit ceiling was reached
//   - Unknown model: invoke_model named a model that is not indexed
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// InvocationID identifies the affected invocation.
	InvocationID string

	// ModelID and NodeID locate the failure.
	ModelID string
	NodeID  string

	// Err is the underlying plugin error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodePluginError indicates a plugin returned an error.
	ErrCodePluginError RuntimeErrorCode = "PLUGIN_ERROR"

	// ErrCodePluginPanic indicates a plugin panicked.
	ErrCodePluginPanic RuntimeErrorCode = "PLUGIN_PANIC"

	// ErrCodeLoopLimit indicates the invocation exhausted its visit budget.
	ErrCodeLoopLimit RuntimeErrorCode = "LOOP_LIMIT_EXCEEDED"

	// ErrCodeUnknownModel indicates a sub-model call named a model that is
	// not in the current index.
	ErrCodeUnknownModel RuntimeErrorCode = "UNKNOWN_MODEL"

	// ErrCodeNoEntry indicates a sub-model call matched none of the target
	// model's event nodes.
	ErrCodeNoEntry RuntimeErrorCode = "NO_ENTRY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.ModelID != "" && e.NodeID != "":
		return fmt.Sprintf("%s: %s (model=%s, node=%s)", e.Code, e.Message, e.ModelID, e.NodeID)
	case e.ModelID != "":
		return fmt.Sprintf("%s: %s (model=%s)", e.Code, e.Message, e.ModelID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying plugin error.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsPluginError returns true if the error came from a plugin, whether it
// was returned or recovered from a panic.
func IsPluginError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodePluginError || re.Code == ErrCodePluginPanic
	}
	return false
}

// IsLoopLimitError returns true if the error is a loop limit error.
// Matches both RuntimeError with ErrCodeLoopLimit and VisitsExceededError.
func IsLoopLimitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLoopLimit
	}
	var ve *VisitsExceededError
	return errors.As(err, &ve)
}

// IsUnknownModel returns true if a sub-model call named a missing model.
func IsUnknownModel(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownModel
	}
	return false
}

// newPluginError wraps a plugin failure at the node boundary.
func newPluginError(modelID, nodeID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePluginError,
		Message: err.Error(),
		ModelID: modelID,
		NodeID:  nodeID,
		Err:     err,
	}
}

// newPanicError converts a recovered panic value.
func newPanicError(modelID, nodeID string, recovered any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePluginPanic,
		Message: fmt.Sprintf("panic: %v", recovered),
		ModelID: modelID,
		NodeID:  nodeID,
	}
}

// abortReason is the reason recorded on an invocation aborted by err.
func abortReason(err *RuntimeError) string {
	return "plugin error: " + err.Message
}
