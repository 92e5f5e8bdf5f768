package strategy

import (
	"fmt"
	"strings"
)

// Chain is a maximal ordered run of allocations linked by edges
type Chain struct {
	Nodes  []string `json:"nodes"`
	Label  string   `json:"label"`
	Orphan bool     `json:"orphan"`
}

// Head returns the first allocation of the chain
func (c Chain) Head() string {
	return c.Nodes[0]
}

// Tail returns the last allocation of the chain
func (c Chain) Tail() string {
	return c.Nodes[len(c.Nodes)-1]
}

// Contains reports whether name belongs to the chain
func (c Chain) Contains(name string) bool {
	for _, n := range c.Nodes {
		if n == name {
			return true
		}
	}
	return false
}

// Decomposition is the chain partition and per-node fallback flags
type Decomposition struct {
	Chains   []Chain         `json:"chains"`
	Fallback map[string]bool `json:"fallback"`
	Incoming map[string]int  `json:"-"`
	Outgoing map[string]int  `json:"-"`
}

// IsFallback reports whether name is the terminal node of a multi-node chain
func (d Decomposition) IsFallback(name string) bool {
	return d.Fallback[name]
}

// ChainOf returns the index of the chain holding name
func (d Decomposition) ChainOf(name string) (int, bool) {
	for i, c := range d.Chains {
		if c.Contains(name) {
			return i, true
		}
	}
	return -1, false
}

// Decompose partitions names into chains following edges. Heads are nodes
// without incoming edges, visited in names order; each walk follows the first
// recorded outgoing edge and stops at a node without one or at a node already
// visited. Nodes never reached (cycle members) become single-node chains.
// Edges naming unknown allocations are ignored.
func Decompose(names []string, edges []Edge) Decomposition {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	d := Decomposition{
		Fallback: make(map[string]bool, len(names)),
		Incoming: make(map[string]int, len(names)),
		Outgoing: make(map[string]int, len(names)),
	}
	next := make(map[string]string, len(edges))
	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] || e.Source == e.Target {
			continue
		}
		d.Outgoing[e.Source]++
		d.Incoming[e.Target]++
		if _, ok := next[e.Source]; !ok {
			next[e.Source] = e.Target
		}
	}

	for _, n := range names {
		d.Fallback[n] = d.Incoming[n] > 0 && d.Outgoing[n] == 0
	}

	visited := make(map[string]bool, len(names))
	for _, n := range names {
		if d.Incoming[n] > 0 || visited[n] {
			continue
		}
		var nodes []string
		for cur, ok := n, true; ok && !visited[cur]; cur, ok = next[cur] {
			visited[cur] = true
			nodes = append(nodes, cur)
		}
		d.Chains = append(d.Chains, Chain{Nodes: nodes})
	}
	for _, n := range names {
		if !visited[n] {
			visited[n] = true
			d.Chains = append(d.Chains, Chain{Nodes: []string{n}})
		}
	}

	for i := range d.Chains {
		c := &d.Chains[i]
		c.Orphan = len(c.Nodes) == 1 && d.Incoming[c.Head()] == 0 && d.Outgoing[c.Head()] == 0
		c.Label = chainLabel(i, c.Nodes, c.Orphan)
	}
	return d
}

// chainLabel names a chain; only an orphan is labeled with its bare name
func chainLabel(index int, nodes []string, orphan bool) string {
	if orphan && len(nodes) == 1 {
		return nodes[0]
	}
	return fmt.Sprintf("Strategy %d: %s", index+1, strings.Join(nodes, " → "))
}
