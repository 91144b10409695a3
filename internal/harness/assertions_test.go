package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/ir"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Step: 0, Event: "order:placed", Model: "audit", Node: "placed", State: ir.StateAborted, Reason: "boom", Visited: 2, Seq: 1},
		{Step: 0, Event: "order:placed", Model: "notify", Node: "placed", State: ir.StateCompleted, Visited: 2, Seq: 2},
		{Step: 1, Event: "order:placed", Model: "notify", Node: "placed", State: ir.StateCompleted, Visited: 2, Seq: 3},
	}
	r.Messages = []string{"notify: Order 1 placed", "notify: Order 2 placed"}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	msgs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertReportCount, Count: 3},
		{Type: AssertReportCount, Model: "notify", Count: 2},
		{Type: AssertReportCount, Model: "audit", State: "completed", Count: 0},
		{Type: AssertReportState, Model: "audit", State: "aborted"},
		{Type: AssertReportOrder, Models: []string{"audit", "notify"}},
		{Type: AssertMessages, Messages: []string{"notify: Order 1 placed", "notify: Order 2 placed"}},
		{Type: AssertMessageContains, Text: "Order 2"},
	})
	assert.Empty(t, msgs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"count", Assertion{Type: AssertReportCount, Model: "notify", Count: 1}, "Actual: 2 report(s)"},
		{"state", Assertion{Type: AssertReportState, Model: "notify", State: "aborted"}, "states completed, completed"},
		{"state no reports", Assertion{Type: AssertReportState, Model: "ghost", State: "completed"}, "no reports for model"},
		{"order reversed", Assertion{Type: AssertReportOrder, Models: []string{"notify", "audit"}}, "notify (pos 2) should be before audit (pos 1)"},
		{"order missing", Assertion{Type: AssertReportOrder, Models: []string{"audit", "ghost"}}, "missing model: ghost"},
		{"messages", Assertion{Type: AssertMessages, Messages: []string{}}, "Expected: []"},
		{"contains", Assertion{Type: AssertMessageContains, Text: "refund"}, `a message containing "refund"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], "assertions[0]: Assertion failed: "+tt.assertion.Type)
			assert.Contains(t, msgs[0], tt.want)
			assert.Contains(t, msgs[0], "Full trace:")
		})
	}
}

func TestAssertionError_ListsTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertReportCount,
		Expected: "1",
		Actual:   "2",
		Trace:    sampleResult().Trace[:1],
	}
	assert.Contains(t, err.Error(), "[1] step 0 order:placed -> audit/placed aborted")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "none", describe(nil))
	assert.Equal(t, "audit/placed=aborted, notify/placed=completed", describe(sampleResult().Trace[:2]))
}
