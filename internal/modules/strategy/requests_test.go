package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequests_ChainIsolation(t *testing.T) {
	e := newTestEditor(t)
	for _, n := range []string{"A", "B", "C", "D"} {
		addValid(t, e, n, "SPY")
	}
	addRule(t, e, "R1")
	addRule(t, e, "R2")
	addRule(t, e, "Unused")
	connect(t, e, "A", "B")
	connect(t, e, "C", "D")
	require.NoError(t, e.AssignRuleToAllocation("R1", "A"))
	require.NoError(t, e.AssignRuleToAllocation("R2", "C"))

	requests, err := e.Requests()
	require.NoError(t, err)
	require.Len(t, requests, 2)

	first := requests[0]
	assert.Equal(t, "Strategy 1: A → B", first.Name)
	assert.Equal(t, []string{"A", "B"}, first.Allocations.Names())
	assert.Equal(t, "B", first.FallbackAllocation)
	require.Len(t, first.SwitchingLogic, 1)
	assert.Equal(t, "R1", first.SwitchingLogic[0].Name)
	require.Len(t, first.AllocationRules, 1)
	assert.Equal(t, "A", first.AllocationRules[0].Allocation)

	data, err := json.Marshal(first)
	require.NoError(t, err)
	for _, foreign := range []string{`"C"`, `"D"`, "R2", "Unused"} {
		assert.NotContains(t, string(data), foreign)
	}
	assert.Equal(t, testDefaults.StartDate, first.StartDate)
	assert.Equal(t, testDefaults.InitialCapital, first.InitialCapital)

	second := requests[1]
	assert.Equal(t, []string{"C", "D"}, second.Allocations.Names())
	assert.Equal(t, "D", second.FallbackAllocation)
}

func TestRequests_OrphanFallsBackToItself(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "X", "SPY")
	addValid(t, e, "Y", "SHV")
	addRule(t, e, "Trend")
	require.NoError(t, e.AssignRuleToAllocation("Trend", "Y"))

	requests, err := e.Requests()
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, "X", requests[0].Name)
	assert.Equal(t, "X", requests[0].FallbackAllocation)
	assert.Empty(t, requests[0].SwitchingLogic)
	assert.NotNil(t, requests[0].SwitchingLogic)
	assert.Nil(t, requests[0].AllocationRules)

	// Every node bound: the tail is the fallback
	assert.Equal(t, "Y", requests[1].FallbackAllocation)
}

func TestRequests_RejectInvalidStrategy(t *testing.T) {
	e := newTestEditor(t)
	_, err := e.AddAllocationWithAssets("Half", NamedAllocation{Allocation: Allocation{"SPY": 0.5}})
	require.NoError(t, err)

	_, err = e.Requests()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Half", verrs[0].Allocation)
}

func TestBuildChainRequest_UnknownNode(t *testing.T) {
	doc := NewDocument(testDefaults)
	_, err := BuildChainRequest(doc, Chain{Nodes: []string{"Ghost"}})
	assert.ErrorIs(t, err, ErrAllocationNotFound)

	_, err = BuildChainRequest(doc, Chain{})
	assert.Error(t, err)
}

func TestBuildChainRequest_KeepsCatalogOrder(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "A", "SPY")
	addValid(t, e, "B", "SHV")
	addRule(t, e, "First")
	addRule(t, e, "Second")
	connect(t, e, "A", "B")
	require.NoError(t, e.SetRuleExpressionText("A", "Second AND First"))

	requests, err := e.Requests()
	require.NoError(t, err)
	require.Len(t, requests[0].SwitchingLogic, 2)
	assert.Equal(t, "First", requests[0].SwitchingLogic[0].Name)
	assert.Equal(t, "Second", requests[0].SwitchingLogic[1].Name)
}

func TestBuildChainRequest_IgnoresEmptyBindings(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "A", "SPY")
	addValid(t, e, "B", "SHV")
	doc := e.Document()
	doc.AllocationRules = []RuleBinding{{Allocation: "A", Rules: RuleSet{Kind: RuleSetExpr}}}

	req, err := BuildChainRequest(doc, Chain{Nodes: []string{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, "A", req.FallbackAllocation)
	assert.Empty(t, req.AllocationRules)
}
