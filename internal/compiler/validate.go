package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Model validation codes (E200-E299)
const (
	// Structural errors: the model is rejected.
	ErrInvalidModel     = "E200" // struct validation failed (missing id, bad status...)
	ErrDuplicateNodeID  = "E201" // node id used twice in one model
	ErrInvalidPriority  = "E202" // priority is not an integer
	ErrInvalidEdgeLabel = "E204" // then/else on a non-condition edge

	// Recoverable problems: the model compiles, the offending part is
	// degraded or dropped.
	ErrUnknownPlugin     = "E210" // plugin id not in catalog, node degraded
	ErrInvalidConfig     = "E211" // plugin rejected its config, node degraded
	ErrDanglingSuccessor = "E212" // edge endpoint missing, edge dropped
	ErrExtraSuccessor    = "E213" // more outgoing edges than the node kind allows
	ErrUnlabelledBranch  = "E214" // unlabelled edge leaving a condition, edge dropped
	ErrUnguardedCycle    = "E215" // cycle with no condition or gateway
	ErrNoEvents          = "E216" // model has no event node and never fires
	ErrUnsupportedValue  = "E217" // config value the IR cannot hold, node degraded
)

// Severity separates fatal validation errors from warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError is a single compile diagnostic.
type ValidationError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ModelError is returned by Compile when a model has error-severity
// diagnostics.
type ModelError struct {
	ModelID string
	Errors  []ValidationError
}

func (e *ModelError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("model %q is invalid: %s", e.ModelID, strings.Join(msgs, "; "))
}

// IsModelError reports whether err is a ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tag rules of RawModel. Returns all errors
// found (does not fail-fast).
func validateStruct(raw *RawModel) []ValidationError {
	err := validate.Struct(raw)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{
			Field:    "model",
			Message:  err.Error(),
			Code:     ErrInvalidModel,
			Severity: SeverityError,
		}}
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:    fieldPath(fe.Namespace()),
			Message:  describeTag(fe),
			Code:     ErrInvalidModel,
			Severity: SeverityError,
		})
	}
	return out
}

// fieldPath turns "RawModel.Events[0].Plugin" into "events[0].plugin".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "RawModel.")
	return strings.ToLower(ns)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// hasErrors reports whether any diagnostic is an error.
func hasErrors(diags []ValidationError) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func errorsOnly(diags []ValidationError) []ValidationError {
	var out []ValidationError
	for _, d := range diags {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}
