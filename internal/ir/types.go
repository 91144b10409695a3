package ir

// Status is a model's enablement state. Only enabled models are indexed.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// NodeKind distinguishes the four node families of a model graph.
type NodeKind string

const (
	KindEvent     NodeKind = "event"
	KindCondition NodeKind = "condition"
	KindAction    NodeKind = "action"
	KindGateway   NodeKind = "gateway"
)

// EdgeLabel marks a successor edge. Condition nodes use Then/Else; every
// other edge is unconditional.
type EdgeLabel string

const (
	EdgeAlways EdgeLabel = ""
	EdgeThen   EdgeLabel = "then"
	EdgeElse   EdgeLabel = "else"
)

// Model is a compiled ECA model: a directed graph of events, conditions,
// actions and gateways connected by successor edges.
//
// Node order inside each slice is declaration order and is preserved by the
// compiler; successor order defines fork fan-out order.
type Model struct {
	ID         string          `json:"id"`
	Label      string          `json:"label,omitempty"`
	Status     Status          `json:"status"`
	Events     []EventNode     `json:"events"`
	Conditions []ConditionNode `json:"conditions"`
	Actions    []ActionNode    `json:"actions"`
	Gateways   []GatewayNode   `json:"gateways"`
	Successors []Successor     `json:"successors"`

	// Hash is the content hash of the source model (ModelHash).
	Hash string `json:"hash"`
}

// Enabled reports whether the model participates in dispatch.
func (m *Model) Enabled() bool {
	return m.Status == StatusEnabled
}

// EventNode is an entry point. Priority orders subscribers of the same
// host event: lower runs first, ties broken by model id then node id.
type EventNode struct {
	ID       string `json:"id"`
	Plugin   string `json:"plugin"`
	Config   Map    `json:"config"`
	Priority int64  `json:"priority"`
	Degraded bool   `json:"degraded,omitempty"`
}

// ConditionNode is a boolean branch point.
type ConditionNode struct {
	ID       string `json:"id"`
	Plugin   string `json:"plugin"`
	Config   Map    `json:"config"`
	Negated  bool   `json:"negated,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// ActionNode is a side-effecting or data-producing step.
type ActionNode struct {
	ID       string `json:"id"`
	Plugin   string `json:"plugin"`
	Config   Map    `json:"config"`
	Degraded bool   `json:"degraded,omitempty"`
}

// GatewayNode is a structural join or fork point.
type GatewayNode struct {
	ID string `json:"id"`
}

// Successor is a directed edge between two nodes of the same model.
type Successor struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Label  EdgeLabel `json:"label,omitempty"`
}

// IndexEntry routes a host event (or event pattern) to one event node.
// Entries are derived data; they are never edited by hand.
type IndexEntry struct {
	Pattern  string `json:"pattern"`
	ModelID  string `json:"model_id"`
	NodeID   string `json:"node_id"`
	Priority int64  `json:"priority"`
}

// LessEntry orders entries by priority, then model id, then node id.
func LessEntry(a, b IndexEntry) int {
	switch {
	case a.Priority < b.Priority:
		return -1
	case a.Priority > b.Priority:
		return 1
	case a.ModelID < b.ModelID:
		return -1
	case a.ModelID > b.ModelID:
		return 1
	case a.NodeID < b.NodeID:
		return -1
	case a.NodeID > b.NodeID:
		return 1
	}
	return 0
}
