package compiler

import "github.com/roach88/eca/internal/ir"

// Graph is a compiled model with adjacency and node lookup tables. It is
// immutable once built and shared by every concurrent dispatch.
type Graph struct {
	Model *ir.Model

	// Diagnostics holds the warnings recorded while compiling.
	Diagnostics []ValidationError

	kinds      map[string]ir.NodeKind
	events     map[string]*ir.EventNode
	conditions map[string]*ir.ConditionNode
	actions    map[string]*ir.ActionNode
	outgoing   map[string][]ir.Successor
	incoming   map[string]int
}

// NewGraph indexes an already validated model.
func NewGraph(m *ir.Model) *Graph {
	g := &Graph{
		Model:      m,
		kinds:      make(map[string]ir.NodeKind),
		events:     make(map[string]*ir.EventNode, len(m.Events)),
		conditions: make(map[string]*ir.ConditionNode, len(m.Conditions)),
		actions:    make(map[string]*ir.ActionNode, len(m.Actions)),
		outgoing:   make(map[string][]ir.Successor),
		incoming:   make(map[string]int),
	}
	for i := range m.Events {
		g.kinds[m.Events[i].ID] = ir.KindEvent
		g.events[m.Events[i].ID] = &m.Events[i]
	}
	for i := range m.Conditions {
		g.kinds[m.Conditions[i].ID] = ir.KindCondition
		g.conditions[m.Conditions[i].ID] = &m.Conditions[i]
	}
	for i := range m.Actions {
		g.kinds[m.Actions[i].ID] = ir.KindAction
		g.actions[m.Actions[i].ID] = &m.Actions[i]
	}
	for _, gw := range m.Gateways {
		g.kinds[gw.ID] = ir.KindGateway
	}
	for _, s := range m.Successors {
		g.outgoing[s.Source] = append(g.outgoing[s.Source], s)
		g.incoming[s.Target]++
	}
	return g
}

// ID returns the model id.
func (g *Graph) ID() string { return g.Model.ID }

// Kind returns the kind of node id.
func (g *Graph) Kind(id string) (ir.NodeKind, bool) {
	k, ok := g.kinds[id]
	return k, ok
}

// Event returns the event node id.
func (g *Graph) Event(id string) (*ir.EventNode, bool) {
	n, ok := g.events[id]
	return n, ok
}

// Condition returns the condition node id.
func (g *Graph) Condition(id string) (*ir.ConditionNode, bool) {
	n, ok := g.conditions[id]
	return n, ok
}

// Action returns the action node id.
func (g *Graph) Action(id string) (*ir.ActionNode, bool) {
	n, ok := g.actions[id]
	return n, ok
}

// Outgoing returns the edges leaving id in declaration order.
func (g *Graph) Outgoing(id string) []ir.Successor {
	return g.outgoing[id]
}

// Next returns the edge leaving id with the given label.
func (g *Graph) Next(id string, label ir.EdgeLabel) (ir.Successor, bool) {
	for _, s := range g.outgoing[id] {
		if s.Label == label {
			return s, true
		}
	}
	return ir.Successor{}, false
}

// InDegree returns the number of edges entering id.
func (g *Graph) InDegree(id string) int {
	return g.incoming[id]
}
