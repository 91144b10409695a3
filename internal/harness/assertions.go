package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] step %d %s -> %s/%s %s\n", i+1, ev.Step, ev.Event, ev.Model, ev.Node, ev.State)
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertReportCount:
		return assertReportCount(result.Trace, a)
	case AssertReportState:
		return assertReportState(result.Trace, a)
	case AssertReportOrder:
		return assertReportOrder(result.Trace, a)
	case AssertMessages:
		return assertMessages(result, a)
	case AssertMessageContains:
		return assertMessageContains(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertReportCount counts reports matching the optional model and state.
func assertReportCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.Model != "" && ev.Model != a.Model {
			continue
		}
		if a.State != "" && string(ev.State) != a.State {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertReportCount,
		Expected: fmt.Sprintf("%d report(s) for model=%q state=%q", a.Count, a.Model, a.State),
		Actual:   fmt.Sprintf("%d report(s)", count),
		Trace:    trace,
	}
}

// assertReportState checks that some report of the model ended in state.
func assertReportState(trace []TraceEvent, a Assertion) error {
	var seen []string
	for _, ev := range trace {
		if ev.Model != a.Model {
			continue
		}
		if string(ev.State) == a.State {
			return nil
		}
		seen = append(seen, string(ev.State))
	}
	actual := "no reports for model"
	if len(seen) > 0 {
		actual = "states " + strings.Join(seen, ", ")
	}
	return &AssertionError{
		Type:     AssertReportState,
		Expected: fmt.Sprintf("model %s reaching %s", a.Model, a.State),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertReportOrder checks that the models first appear in the given
// order. Other reports may appear in between.
func assertReportOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, ok := positions[ev.Model]; !ok {
			positions[ev.Model] = i + 1 // 1-indexed for readability
		}
	}

	for _, m := range a.Models {
		if positions[m] == 0 {
			return &AssertionError{
				Type:     AssertReportOrder,
				Expected: fmt.Sprintf("all models present: %v", a.Models),
				Actual:   fmt.Sprintf("missing model: %s", m),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Models); i++ {
		prev, curr := a.Models[i-1], a.Models[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertReportOrder,
				Expected: fmt.Sprintf("models in order: %v", a.Models),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertMessages(result *Result, a Assertion) error {
	if slices.Equal(result.Messages, a.Messages) {
		return nil
	}
	return &AssertionError{
		Type:     AssertMessages,
		Expected: fmt.Sprintf("%q", a.Messages),
		Actual:   fmt.Sprintf("%q", result.Messages),
		Trace:    result.Trace,
	}
}

func assertMessageContains(result *Result, a Assertion) error {
	for _, m := range result.Messages {
		if strings.Contains(m, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertMessageContains,
		Expected: fmt.Sprintf("a message containing %q", a.Text),
		Actual:   fmt.Sprintf("%q", result.Messages),
		Trace:    result.Trace,
	}
}

// describe formats a trace compactly for error messages.
func describe(events []TraceEvent) string {
	if len(events) == 0 {
		return "none"
	}
	parts := make([]string, len(events))
	for i, ev := range events {
		parts[i] = fmt.Sprintf("%s/%s=%s", ev.Model, ev.Node, ev.State)
	}
	return strings.Join(parts, ", ")
}
