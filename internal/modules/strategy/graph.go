package strategy

import "fmt"

// Edge connects a source allocation to the allocation it switches to
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the directed edge set over allocation names, in creation order
type Graph struct {
	edges []Edge
}

// NewGraph builds a graph from edges without validating them.
// Duplicates and self loops are dropped so the stored set stays well-formed.
func NewGraph(edges []Edge) Graph {
	var g Graph
	for _, e := range edges {
		if e.Source == e.Target || g.Has(e.Source, e.Target) {
			continue
		}
		g.edges = append(g.edges, e)
	}
	return g
}

// Edges returns a copy of the edge set
func (g Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the number of edges
func (g Graph) Len() int {
	return len(g.edges)
}

// Has reports whether source → target exists
func (g Graph) Has(source, target string) bool {
	for _, e := range g.edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

// Next returns the first recorded target of source
func (g Graph) Next(source string) (string, bool) {
	for _, e := range g.edges {
		if e.Source == source {
			return e.Target, true
		}
	}
	return "", false
}

// reaches reports whether to is reachable from from by following edges
func (g Graph) reaches(from, to string) bool {
	seen := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for _, e := range g.edges {
			if e.Source == n {
				stack = append(stack, e.Target)
			}
		}
	}
	return false
}

// connect validates and appends an edge. Nodes may have many predecessors
// but only one successor, and no edge may close a cycle.
func (g *Graph) connect(source, target string) error {
	if source == target {
		return ErrSelfLoop
	}
	if g.Has(source, target) {
		return fmt.Errorf("%w: %s → %s", ErrDuplicateEdge, source, target)
	}
	if next, ok := g.Next(source); ok {
		return fmt.Errorf("%w: %s already connects to %s", ErrMultipleOutgoing, source, next)
	}
	if g.reaches(target, source) {
		return fmt.Errorf("%w: %s → %s", ErrCycle, source, target)
	}
	g.edges = append(g.edges, Edge{Source: source, Target: target})
	return nil
}

func (g *Graph) disconnect(source, target string) error {
	for i, e := range g.edges {
		if e.Source == source && e.Target == target {
			g.edges = append(g.edges[:i:i], g.edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrEdgeNotFound, source, target)
}

func (g *Graph) renameNode(oldName, newName string) {
	for i := range g.edges {
		if g.edges[i].Source == oldName {
			g.edges[i].Source = newName
		}
		if g.edges[i].Target == oldName {
			g.edges[i].Target = newName
		}
	}
}

// removeNode drops every edge incident to name
func (g *Graph) removeNode(name string) {
	kept := g.edges[:0:0]
	for _, e := range g.edges {
		if e.Source != name && e.Target != name {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}

// retain drops edges whose endpoints are not in names
func (g *Graph) retain(names []string) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	kept := g.edges[:0:0]
	for _, e := range g.edges {
		if known[e.Source] && known[e.Target] {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}

// Clone returns an independent copy
func (g Graph) Clone() Graph {
	return Graph{edges: g.Edges()}
}
