package schema

import (
	"fmt"
	"strings"
)

// DependencyGraph orders named nodes so that dependencies come first.
// Nodes keep their insertion order, which makes every sort deterministic.
type DependencyGraph struct {
	order []string
	edges map[string][]string // node -> dependencies
}

// CycleError is returned when the remaining nodes depend on each other
type CycleError struct {
	Nodes  []string   // nodes that could not be ordered
	Cycles [][]string // cycles found among them
}

// Error implements the error interface
func (e *CycleError) Error() string {
	msg := fmt.Sprintf("circular dependency detected between: %s", strings.Join(e.Nodes, ", "))
	if len(e.Cycles) > 0 {
		msg += "\n" + formatCycles(e.Cycles)
	}
	return msg
}

// NewDependencyGraph creates an empty graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		edges: make(map[string][]string),
	}
}

// NewModelGraph builds a graph of models linked by their required navigations
func NewModelGraph(models ...*Model) *DependencyGraph {
	byType := make(map[string]bool, len(models))
	for _, m := range models {
		byType[m.Name] = true
	}

	g := NewDependencyGraph()
	for _, m := range models {
		var deps []string
		for _, rel := range m.RequiredNavigations() {
			deps = append(deps, rel.Target.Name())
		}
		g.AddNode(m.Name, deps...)
	}
	return g
}

// AddNode adds a node with its dependencies; adding a node twice merges its dependencies
func (g *DependencyGraph) AddNode(name string, deps ...string) {
	if _, exists := g.edges[name]; !exists {
		g.order = append(g.order, name)
		g.edges[name] = []string{}
	}
	g.edges[name] = append(g.edges[name], deps...)
}

// Nodes returns the nodes in insertion order
func (g *DependencyGraph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// GetDependencies returns the direct dependencies of a node
func (g *DependencyGraph) GetDependencies(node string) []string {
	deps, exists := g.edges[node]
	if !exists {
		return []string{}
	}
	return deps
}

// GetDependents returns all nodes that depend on the given node
func (g *DependencyGraph) GetDependents(node string) []string {
	dependents := []string{}
	for _, n := range g.order {
		for _, dep := range g.edges[n] {
			if dep == node {
				dependents = append(dependents, n)
				break
			}
		}
	}
	return dependents
}

// TopologicalSort orders the nodes in passes. Each pass walks the remaining
// nodes in insertion order and emits every node whose dependencies are
// already emitted; self references and dependencies outside the graph are
// ignored. A pass that emits nothing fails with a *CycleError.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	done := make(map[string]bool, len(g.order))
	result := make([]string, 0, len(g.order))
	remaining := g.Nodes()

	for len(remaining) > 0 {
		var next []string
		for _, node := range remaining {
			if g.ready(node, done) {
				done[node] = true
				result = append(result, node)
			} else {
				next = append(next, node)
			}
		}

		if len(next) == len(remaining) {
			return nil, &CycleError{Nodes: next, Cycles: g.DetectCycles()}
		}
		remaining = next
	}

	return result, nil
}

func (g *DependencyGraph) ready(node string, done map[string]bool) bool {
	for _, dep := range g.edges[node] {
		if dep == node {
			continue
		}
		if _, inGraph := g.edges[dep]; inGraph && !done[dep] {
			return false
		}
	}
	return true
}

// DetectCycles detects circular dependencies in the graph
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if neighbor == node {
				continue
			}
			if _, inGraph := g.edges[neighbor]; !inGraph {
				continue
			}
			if !visited[neighbor] {
				if dfs(neighbor, path) {
					return true
				}
			} else if recursionStack[neighbor] {
				// Found cycle
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				return true
			}
		}

		recursionStack[node] = false
		return false
	}

	for _, node := range g.order {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0])) // Complete the cycle
	}
	return b.String()
}
