package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_LinearChain(t *testing.T) {
	d := Decompose([]string{"A", "B", "C"}, []Edge{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}})

	require.Len(t, d.Chains, 1)
	assert.Equal(t, []string{"A", "B", "C"}, d.Chains[0].Nodes)
	assert.Equal(t, "Strategy 1: A → B → C", d.Chains[0].Label)
	assert.False(t, d.Chains[0].Orphan)

	assert.False(t, d.IsFallback("A"))
	assert.False(t, d.IsFallback("B"))
	assert.True(t, d.IsFallback("C"))
}

func TestDecompose_NoEdges(t *testing.T) {
	d := Decompose([]string{"A", "B", "C"}, nil)

	require.Len(t, d.Chains, 3)
	for i, name := range []string{"A", "B", "C"} {
		assert.Equal(t, []string{name}, d.Chains[i].Nodes)
		assert.Equal(t, name, d.Chains[i].Label)
		assert.True(t, d.Chains[i].Orphan)
		assert.False(t, d.IsFallback(name))
	}
}

func TestDecompose_OnlyOrphansGetBareLabels(t *testing.T) {
	d := Decompose([]string{"X", "Y", "Z", "Solo"}, []Edge{
		{Source: "X", Target: "Z"},
		{Source: "Y", Target: "Z"},
	})

	require.Len(t, d.Chains, 3)
	assert.Equal(t, []string{"X", "Z"}, d.Chains[0].Nodes)
	assert.Equal(t, "Strategy 1: X → Z", d.Chains[0].Label)

	assert.Equal(t, []string{"Y"}, d.Chains[1].Nodes)
	assert.False(t, d.Chains[1].Orphan)
	assert.Equal(t, "Strategy 2: Y", d.Chains[1].Label)

	assert.Equal(t, []string{"Solo"}, d.Chains[2].Nodes)
	assert.True(t, d.Chains[2].Orphan)
	assert.Equal(t, "Solo", d.Chains[2].Label)
}

func TestDecompose_PartitionsEveryNodeOnce(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E", "F"}
	d := Decompose(names, []Edge{
		{Source: "A", Target: "B"},
		{Source: "C", Target: "D"},
		{Source: "E", Target: "D"},
	})

	seen := map[string]int{}
	for _, c := range d.Chains {
		for _, n := range c.Nodes {
			seen[n]++
		}
	}
	for _, n := range names {
		assert.Equal(t, 1, seen[n], "node %s must appear in exactly one chain", n)
	}

	// E reaches D after C already claimed it
	require.Len(t, d.Chains, 4)
	assert.Equal(t, []string{"A", "B"}, d.Chains[0].Nodes)
	assert.Equal(t, []string{"C", "D"}, d.Chains[1].Nodes)
	assert.Equal(t, []string{"E"}, d.Chains[2].Nodes)
	assert.False(t, d.Chains[2].Orphan, "E has an outgoing edge")
	assert.Equal(t, []string{"F"}, d.Chains[3].Nodes)
	assert.True(t, d.Chains[3].Orphan)
	assert.True(t, d.IsFallback("D"))
}

func TestDecompose_CycleTerminates(t *testing.T) {
	d := Decompose([]string{"A", "B", "C"}, []Edge{
		{Source: "A", Target: "B"},
		{Source: "B", Target: "A"},
		{Source: "C", Target: "A"},
	})

	total := 0
	for _, c := range d.Chains {
		total += len(c.Nodes)
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"C", "A", "B"}, d.Chains[0].Nodes)
}

func TestDecompose_FirstOutgoingEdgeWins(t *testing.T) {
	d := Decompose([]string{"A", "B", "C"}, []Edge{
		{Source: "A", Target: "B"},
		{Source: "A", Target: "C"},
	})

	require.Len(t, d.Chains, 2)
	assert.Equal(t, []string{"A", "B"}, d.Chains[0].Nodes)
	assert.Equal(t, []string{"C"}, d.Chains[1].Nodes)
}

func TestDecompose_IgnoresUnknownEdges(t *testing.T) {
	d := Decompose([]string{"A"}, []Edge{{Source: "A", Target: "Ghost"}})
	require.Len(t, d.Chains, 1)
	assert.True(t, d.Chains[0].Orphan)
	assert.False(t, d.IsFallback("A"))
}

func TestDecompositionChainOf(t *testing.T) {
	d := Decompose([]string{"A", "B", "C"}, []Edge{{Source: "B", Target: "C"}})
	i, ok := d.ChainOf("C")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = d.ChainOf("Z")
	assert.False(t, ok)
}
