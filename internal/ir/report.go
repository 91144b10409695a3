package ir

// TerminalState is how an invocation ended.
type TerminalState string

const (
	StateCompleted         TerminalState = "completed"
	StateAborted           TerminalState = "aborted"
	StateLoopLimitExceeded TerminalState = "loop_limit_exceeded"
)

// InvocationReport describes one walk of one model triggered by one
// matched event firing. Dispatch returns one report per index match,
// plus one per re-entrant or sub-model invocation, in execution order.
type InvocationReport struct {
	InvocationID string        `json:"invocation_id"`
	DispatchID   string        `json:"dispatch_id"`
	HostEventID  string        `json:"host_event_id"`
	ModelID      string        `json:"model_id"`
	EventNodeID  string        `json:"event_node_id"`
	State        TerminalState `json:"state"`
	Reason       string        `json:"reason,omitempty"`
	NodesVisited int           `json:"nodes_visited"`

	// Depth is 0 for invocations triggered by the host, and one more than the
	// triggering invocation for re-entrant events and sub-model calls.
	Depth int `json:"depth"`

	// Seq is a logical clock value: reports sort by Seq in execution order.
	Seq int64 `json:"seq"`
}
