package harness

import "github.com/roach88/eca/internal/ir"

// TraceEvent is one invocation report in the order the engine produced it.
type TraceEvent struct {
	Step    int              `json:"step"`
	Event   string           `json:"event"`
	Model   string           `json:"model"`
	Node    string           `json:"node"`
	State   ir.TerminalState `json:"state"`
	Reason  string           `json:"reason,omitempty"`
	Visited int              `json:"visited"`
	Depth   int              `json:"depth"`
	Seq     int64            `json:"seq"`
}

func traceEvent(step int, r ir.InvocationReport) TraceEvent {
	return TraceEvent{
		Step:    step,
		Event:   r.HostEventID,
		Model:   r.ModelID,
		Node:    r.EventNodeID,
		State:   r.State,
		Reason:  r.Reason,
		Visited: r.NodesVisited,
		Depth:   r.Depth,
		Seq:     r.Seq,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every report of every step, in execution order.
	Trace []TraceEvent `json:"trace"`

	// Messages is the set_message output, as "model: message" lines.
	Messages []string `json:"messages"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Messages: []string{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
