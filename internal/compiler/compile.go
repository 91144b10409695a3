package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

// Compile validates raw and builds its graph.
//
// Structural problems (missing ids, duplicate node ids, malformed
// priorities, then/else on non-condition edges) reject the model with a
// *ModelError. Everything else is recovered: unknown plugins, unrepresentable
// config values and rejected configs degrade the node, dangling or surplus
// edges are dropped, and each recovery is recorded as a warning on the graph.
//
// Compile is pure: the same raw model and catalog always produce the same
// graph.
func Compile(raw *RawModel, catalog *plugin.Catalog) (*Graph, error) {
	if raw == nil {
		return nil, fmt.Errorf("compile: nil model")
	}
	diags := validateStruct(raw)
	if hasErrors(diags) {
		return nil, &ModelError{ModelID: raw.ID, Errors: diags}
	}

	c := &compilation{
		raw:     raw,
		catalog: catalog,
		kinds:   make(map[string]ir.NodeKind),
		model: &ir.Model{
			ID:     raw.ID,
			Label:  raw.Label,
			Status: ir.StatusEnabled,
		},
	}
	if raw.Status != "" {
		c.model.Status = ir.Status(raw.Status)
	}

	c.events()
	c.conditions()
	c.actions()
	c.gateways()
	c.successors()

	if len(c.model.Events) == 0 {
		c.warn("events", ErrNoEvents, "model has no event nodes and will never run")
	}

	if hasErrors(c.diags) {
		return nil, &ModelError{ModelID: raw.ID, Errors: errorsOnly(c.diags)}
	}

	hash, err := raw.Hash()
	if err != nil {
		return nil, &ModelError{ModelID: raw.ID, Errors: []ValidationError{{
			Field:    "model",
			Message:  err.Error(),
			Code:     ErrInvalidModel,
			Severity: SeverityError,
		}}}
	}
	c.model.Hash = hash

	g := NewGraph(c.model)
	for _, w := range AnalyzeCycles(g) {
		c.warn("successors", ErrUnguardedCycle, w.Message)
	}
	g.Diagnostics = c.diags
	return g, nil
}

type compilation struct {
	raw     *RawModel
	catalog *plugin.Catalog
	model   *ir.Model
	kinds   map[string]ir.NodeKind
	diags   []ValidationError
}

func (c *compilation) fail(field, code, format string, args ...any) {
	c.diags = append(c.diags, ValidationError{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
		Severity: SeverityError,
	})
}

func (c *compilation) warn(field, code, format string, args ...any) {
	c.diags = append(c.diags, ValidationError{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
		Severity: SeverityWarning,
	})
}

func (c *compilation) declare(field, id string, kind ir.NodeKind) {
	if prev, dup := c.kinds[id]; dup {
		c.fail(field, ErrDuplicateNodeID, "node id %q already used by a %s node", id, prev)
		return
	}
	c.kinds[id] = kind
}

// config converts an authored config map. A value the IR cannot hold
// (NaN, infinities, foreign types) leaves the node with an empty config and
// reports false.
func (c *compilation) config(field string, m map[string]any) (ir.Map, bool) {
	cfg, err := ir.MapFromGo(m)
	if err != nil {
		c.warn(field, ErrUnsupportedValue, "%v, node is a no-op", err)
		return ir.Map{}, false
	}
	return cfg, true
}

// degraded checks that the config converted and that the plugin exists and
// accepts cfg. A failing node is kept and marked degraded.
func (c *compilation) degraded(field string, kind plugin.Kind, id string, cfg ir.Map, converted bool) bool {
	if !converted {
		return true
	}
	if c.catalog == nil {
		return false
	}
	_, err := c.catalog.Instantiate(kind, id, cfg)
	switch {
	case err == nil:
		return false
	case plugin.IsNotFound(err):
		c.warn(field, ErrUnknownPlugin, "unknown %s plugin %q, node is a no-op", kind, id)
	default:
		c.warn(field, ErrInvalidConfig, "%v", err)
	}
	return true
}

func (c *compilation) events() {
	for i, e := range c.raw.Events {
		field := fmt.Sprintf("events[%d]", i)
		c.declare(field+".id", e.ID, ir.KindEvent)
		prio, ok := parsePriority(e.Priority)
		if !ok {
			c.fail(field+".priority", ErrInvalidPriority, "priority must be an integer, got %v", e.Priority)
		}
		cfg, converted := c.config(field+".config", e.Config)
		c.model.Events = append(c.model.Events, ir.EventNode{
			ID:       e.ID,
			Plugin:   e.Plugin,
			Config:   cfg,
			Priority: prio,
			Degraded: c.degraded(field, plugin.KindEvent, e.Plugin, cfg, converted),
		})
	}
}

func (c *compilation) conditions() {
	for i, cond := range c.raw.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		c.declare(field+".id", cond.ID, ir.KindCondition)
		cfg, converted := c.config(field+".config", cond.Config)
		c.model.Conditions = append(c.model.Conditions, ir.ConditionNode{
			ID:       cond.ID,
			Plugin:   cond.Plugin,
			Config:   cfg,
			Negated:  cond.Negated,
			Degraded: c.degraded(field, plugin.KindCondition, cond.Plugin, cfg, converted),
		})
	}
}

func (c *compilation) actions() {
	for i, a := range c.raw.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		c.declare(field+".id", a.ID, ir.KindAction)
		cfg, converted := c.config(field+".config", a.Config)
		c.model.Actions = append(c.model.Actions, ir.ActionNode{
			ID:       a.ID,
			Plugin:   a.Plugin,
			Config:   cfg,
			Degraded: c.degraded(field, plugin.KindAction, a.Plugin, cfg, converted),
		})
	}
}

func (c *compilation) gateways() {
	for i, g := range c.raw.Gateways {
		c.declare(fmt.Sprintf("gateways[%d].id", i), g.ID, ir.KindGateway)
		c.model.Gateways = append(c.model.Gateways, ir.GatewayNode{ID: g.ID})
	}
}

// successors keeps edges in declaration order. Event and action nodes keep
// their first outgoing edge; condition nodes keep the first then and the
// first else edge; gateways keep everything.
func (c *compilation) successors() {
	type branch struct {
		source string
		label  ir.EdgeLabel
	}
	taken := make(map[branch]string)
	edgeIDs := make(map[string]bool)

	for i, s := range c.raw.Successors {
		field := fmt.Sprintf("successors[%d]", i)
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("%s->%s", s.Source, s.Target)
			if s.Label != "" {
				id += "#" + s.Label
			}
		}
		if edgeIDs[id] {
			c.fail(field+".id", ErrDuplicateNodeID, "successor id %q already used", id)
			continue
		}
		edgeIDs[id] = true

		srcKind, srcOK := c.kinds[s.Source]
		_, dstOK := c.kinds[s.Target]
		if !srcOK || !dstOK {
			missing := s.Source
			if srcOK {
				missing = s.Target
			}
			c.warn(field, ErrDanglingSuccessor, "edge %s references unknown node %q, dropped", id, missing)
			continue
		}

		label := ir.EdgeLabel(s.Label)
		switch srcKind {
		case ir.KindCondition:
			if label == ir.EdgeAlways {
				c.warn(field, ErrUnlabelledBranch, "edge %s leaves condition %q without a then/else label, dropped", id, s.Source)
				continue
			}
		default:
			if label != ir.EdgeAlways {
				c.fail(field+".label", ErrInvalidEdgeLabel, "label %q is only valid on condition edges, source %q is a %s", label, s.Source, srcKind)
				continue
			}
		}

		if srcKind != ir.KindGateway {
			key := branch{s.Source, label}
			if first, dup := taken[key]; dup {
				c.warn(field, ErrExtraSuccessor, "%s %q already continues through edge %s, edge %s dropped", srcKind, s.Source, first, id)
				continue
			}
			taken[key] = id
		}

		c.model.Successors = append(c.model.Successors, ir.Successor{
			ID:     id,
			Source: s.Source,
			Target: s.Target,
			Label:  label,
		})
	}
}

// parsePriority accepts integers, integral floats and decimal strings.
// A missing priority is 0.
func parsePriority(v any) (int64, bool) {
	switch p := v.(type) {
	case nil:
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		return n, err == nil
	}
	val, err := ir.FromGo(v)
	if err != nil {
		return 0, false
	}
	n, ok := val.(ir.Int)
	return int64(n), ok
}
