package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/eca/internal/ir"
)

// CycleWarning describes a cycle in a model graph that has no condition or
// gateway on it and therefore can only stop at the node-visit ceiling.
//
// Cycles through a condition or gateway are normal loop constructs and are
// not reported.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles finds unguarded cycles in g.
//
// The algorithm:
//  1. Build node → successor-node adjacency from the edges
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop whose members are all
//     events or actions
//
// Nodes are visited in declaration order so the result is deterministic.
func AnalyzeCycles(g *Graph) []CycleWarning {
	graph, order := buildDependencyGraph(g.Model)
	if len(order) == 0 {
		return nil
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		if guarded(g, scc) {
			continue
		}
		warnings = append(warnings, cycleSCCToWarning(scc, graph))
	}
	return warnings
}

// dependencyGraph maps node id → successor node ids.
type dependencyGraph map[string][]string

func buildDependencyGraph(m *ir.Model) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	var order []string
	add := func(id string) {
		if _, ok := graph[id]; !ok {
			graph[id] = []string{}
			order = append(order, id)
		}
	}
	for _, e := range m.Events {
		add(e.ID)
	}
	for _, c := range m.Conditions {
		add(c.ID)
	}
	for _, a := range m.Actions {
		add(a.ID)
	}
	for _, gw := range m.Gateways {
		add(gw.ID)
	}
	for _, s := range m.Successors {
		graph[s.Source] = append(graph[s.Source], s.Target)
	}
	return graph, order
}

func guarded(g *Graph, scc []string) bool {
	for _, id := range scc {
		if k, _ := g.Kind(id); k == ir.KindCondition || k == ir.KindGateway {
			return true
		}
	}
	return false
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of node ids.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("node %s loops to itself with no condition to stop it", id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("unguarded cycle %s will run until the node-visit limit", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath follows edges inside the SCC from its last-popped
// member until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
