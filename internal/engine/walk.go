package engine

import (
	"context"
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
	"github.com/roach88/eca/internal/tokens"
)

// dispatch is the state of one Dispatch call. It lives on the caller's
// stack and is never shared between goroutines.
type dispatch struct {
	engine  *Engine
	id      string
	snap    *index.Snapshot
	reports []ir.InvocationReport

	// plugins caches instances per node for the lifetime of the dispatch.
	plugins map[nodeKey]any
}

type nodeKey struct {
	model string
	node  string
}

// invocation is one walk of one model from one event node.
type invocation struct {
	id      string
	graph   *compiler.Graph
	node    *ir.EventNode
	event   plugin.HostEvent
	depth   int
	budget  *Budget
	tokens  *tokens.Context
	visited int
	queue   eventQueue

	// arrivals counts, per gateway, the arrivals through each incoming edge.
	arrivals map[string]map[string]int
}

// frame is a pending node visit and the edge it was reached through.
type frame struct {
	node string
	via  string
}

// finished returns the reports of every invocation that reached a terminal
// state.
func (d *dispatch) finished() []ir.InvocationReport {
	out := make([]ir.InvocationReport, 0, len(d.reports))
	for _, r := range d.reports {
		if r.State != "" {
			out = append(out, r)
		}
	}
	return out
}

// run performs one invocation for entry, then drains the events it
// published. It returns the report slot, or -1 when nothing ran.
func (d *dispatch) run(ctx context.Context, entry ir.IndexEntry, ev plugin.HostEvent, depth int, budget *Budget, ambient bool) int {
	e := d.engine
	g, ok := d.snap.Graph(entry.ModelID)
	if !ok {
		e.logger.Warn("index entry references unknown model", "model", entry.ModelID)
		return -1
	}
	node, ok := g.Event(entry.NodeID)
	if !ok {
		e.logger.Warn("index entry references unknown event node",
			"model", entry.ModelID,
			"node", entry.NodeID)
		return -1
	}
	ep, ok := d.plugin(g, plugin.KindEvent, node.ID, node.Plugin, node.Config).(plugin.EventPlugin)
	if !ok {
		return -1
	}

	inv := &invocation{
		id:       e.ids.Generate(),
		graph:    g,
		node:     node,
		event:    ev,
		depth:    depth,
		budget:   budget,
		arrivals: make(map[string]map[string]int),
	}
	slot := len(d.reports)
	d.reports = append(d.reports, ir.InvocationReport{})
	seq := e.clock.Next()

	ctx, span := e.tracer.Start(ctx, "eca.invocation", trace.WithAttributes(
		attribute.String("eca.invocation_id", inv.id),
		attribute.String("eca.model", g.ID()),
		attribute.String("eca.event_node", node.ID),
		attribute.Int("eca.depth", depth),
	))

	var state ir.TerminalState
	var reason string
	seed, rerr := extract(g.ID(), node.ID, ep, ev)
	if rerr != nil {
		state, reason = d.pluginFailure(inv, node.Plugin, rerr)
	} else {
		inv.tokens = tokens.NewWith(d.seed(seed, ambient))
		state, reason = d.walk(ctx, inv)
	}

	report := ir.InvocationReport{
		InvocationID: inv.id,
		DispatchID:   d.id,
		HostEventID:  ev.ID,
		ModelID:      g.ID(),
		EventNodeID:  node.ID,
		State:        state,
		Reason:       reason,
		NodesVisited: inv.visited,
		Depth:        depth,
		Seq:          seq,
	}
	d.reports[slot] = report
	e.metrics.observeInvocation(report)

	span.SetAttributes(
		attribute.String("eca.state", string(state)),
		attribute.Int("eca.nodes_visited", inv.visited),
	)
	if state != ir.StateCompleted {
		span.SetStatus(codes.Error, reason)
	}
	span.End()

	e.logger.Debug("invocation finished",
		"dispatch", d.id,
		"invocation", inv.id,
		"model", g.ID(),
		"node", node.ID,
		"state", state,
		"reason", reason,
		"visited", inv.visited,
		"depth", depth)

	d.drain(ctx, inv)
	return slot
}

// seed merges the host ambient entries under the extracted event context.
func (d *dispatch) seed(extracted map[string]any, ambient bool) map[string]any {
	if !ambient || len(d.engine.ambient) == 0 {
		return extracted
	}
	out := maps.Clone(d.engine.ambient)
	maps.Copy(out, extracted)
	return out
}

// drain dispatches the events inv published, in publication order. Each
// one runs to completion, including its own re-entrant events, before the
// next is started.
func (d *dispatch) drain(ctx context.Context, inv *invocation) {
	for {
		pe, ok := inv.queue.TryDequeue()
		if !ok {
			return
		}
		for _, entry := range d.snap.Lookup(pe.event.ID) {
			d.run(ctx, entry, pe.event, pe.depth, inv.budget, true)
		}
	}
}

// walk visits the model depth-first from the event node. Fork successors
// are walked sequentially in declaration order.
func (d *dispatch) walk(ctx context.Context, inv *invocation) (ir.TerminalState, string) {
	e := d.engine
	stack := []frame{{node: inv.node.ID}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := inv.budget.Visit(inv.id); err != nil {
			e.logger.Warn("node-visit limit reached",
				"dispatch", d.id,
				"invocation", inv.id,
				"model", inv.graph.ID(),
				"node", f.node,
				"limit", inv.budget.Limit())
			return ir.StateLoopLimitExceeded, fmt.Sprintf("loop limit exceeded: %d node visits", inv.budget.Limit())
		}
		inv.visited++

		next, reason, aborted := d.visit(ctx, inv, f)
		if aborted {
			return ir.StateAborted, reason
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: next[i].Target, via: next[i].ID})
		}
	}
	return ir.StateCompleted, ""
}

// visit evaluates one node and returns the edges to follow.
//
// Gateways use first-arrival-wins semantics: a join never waits for its
// other incoming branches and passes through on every arrival, so the nodes
// after it run once per arriving branch. The arrival counts are kept for
// logging only and do not guard the join.
func (d *dispatch) visit(ctx context.Context, inv *invocation, f frame) ([]ir.Successor, string, bool) {
	g := inv.graph
	kind, _ := g.Kind(f.node)
	d.engine.logger.Debug("visiting node",
		"invocation", inv.id,
		"model", g.ID(),
		"node", f.node,
		"kind", kind)

	switch kind {
	case ir.KindEvent:
		return g.Outgoing(f.node), "", false

	case ir.KindGateway:
		seen := inv.arrivals[f.node]
		if seen == nil {
			seen = make(map[string]int)
			inv.arrivals[f.node] = seen
		}
		seen[f.via]++
		d.engine.logger.Debug("gateway arrival",
			"invocation", inv.id,
			"model", g.ID(),
			"node", f.node,
			"via", f.via,
			"arrivals", seen[f.via])
		return g.Outgoing(f.node), "", false

	case ir.KindCondition:
		n, _ := g.Condition(f.node)
		result := false
		if !n.Degraded {
			if cp, ok := d.plugin(g, plugin.KindCondition, n.ID, n.Plugin, n.Config).(plugin.ConditionPlugin); ok {
				r, rerr := evaluate(ctx, g.ID(), n.ID, cp, inv.tokens)
				if rerr != nil {
					_, reason := d.pluginFailure(inv, n.Plugin, rerr)
					return nil, reason, true
				}
				result = r != n.Negated
			}
		}
		label := ir.EdgeElse
		if result {
			label = ir.EdgeThen
		}
		if s, ok := g.Next(n.ID, label); ok {
			return []ir.Successor{s}, "", false
		}
		return nil, "", false

	case ir.KindAction:
		n, _ := g.Action(f.node)
		if !n.Degraded {
			if ap, ok := d.plugin(g, plugin.KindAction, n.ID, n.Plugin, n.Config).(plugin.ActionPlugin); ok {
				env := &plugin.Env{
					Tokens:   inv.tokens,
					Event:    inv.event,
					ModelID:  g.ID(),
					NodeID:   n.ID,
					Logger:   d.engine.logger,
					Host:     &host{d: d, inv: inv},
					Messages: d.engine.messages,
				}
				out, rerr := execute(ctx, g.ID(), n.ID, ap, env)
				if rerr != nil {
					_, reason := d.pluginFailure(inv, n.Plugin, rerr)
					return nil, reason, true
				}
				if out.Aborted() {
					return nil, out.Reason(), true
				}
			}
		}
		return g.Outgoing(n.ID), "", false
	}

	d.engine.logger.Warn("walk reached unknown node",
		"model", g.ID(),
		"node", f.node)
	return nil, "", false
}

// plugin returns the cached instance for a node. A node whose plugin can
// no longer be instantiated behaves as degraded and yields nil.
func (d *dispatch) plugin(g *compiler.Graph, kind plugin.Kind, nodeID, pluginID string, cfg ir.Map) any {
	k := nodeKey{model: g.ID(), node: nodeID}
	if inst, ok := d.plugins[k]; ok {
		return inst
	}
	inst, err := d.engine.catalog.Instantiate(kind, pluginID, cfg)
	if err != nil {
		d.engine.logger.Warn("plugin unavailable, treating node as degraded",
			"model", g.ID(),
			"node", nodeID,
			"plugin", pluginID,
			"error", err)
		inst = nil
	}
	d.plugins[k] = inst
	return inst
}

func (d *dispatch) pluginFailure(inv *invocation, pluginID string, rerr *RuntimeError) (ir.TerminalState, string) {
	rerr.InvocationID = inv.id
	d.engine.logger.Error("plugin failed",
		"dispatch", d.id,
		"invocation", inv.id,
		"model", rerr.ModelID,
		"node", rerr.NodeID,
		"plugin", pluginID,
		"code", rerr.Code,
		"error", rerr.Message)
	d.engine.metrics.observePluginError(rerr.ModelID, pluginID, rerr.Code)
	return ir.StateAborted, abortReason(rerr)
}

func extract(modelID, nodeID string, p plugin.EventPlugin, ev plugin.HostEvent) (out map[string]any, rerr *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			rerr = newPanicError(modelID, nodeID, r)
		}
	}()
	return p.ExtractContext(ev), nil
}

func evaluate(ctx context.Context, modelID, nodeID string, p plugin.ConditionPlugin, tc *tokens.Context) (ok bool, rerr *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			rerr = newPanicError(modelID, nodeID, r)
		}
	}()
	res, err := p.Evaluate(ctx, tc)
	if err != nil {
		return false, newPluginError(modelID, nodeID, err)
	}
	return res, nil
}

func execute(ctx context.Context, modelID, nodeID string, p plugin.ActionPlugin, env *plugin.Env) (out plugin.Outcome, rerr *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			rerr = newPanicError(modelID, nodeID, r)
		}
	}()
	o, err := p.Execute(ctx, env)
	if err != nil {
		return plugin.Continue(), newPluginError(modelID, nodeID, err)
	}
	return o, nil
}
