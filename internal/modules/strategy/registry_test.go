package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFromTemplate_SuffixesRepeatedNames(t *testing.T) {
	e := newTestEditor(t)

	first, err := e.AddFromTemplate("spy_100")
	require.NoError(t, err)
	second, err := e.AddFromTemplate("spy_100")
	require.NoError(t, err)
	third, err := e.AddFromTemplate("spy_100")
	require.NoError(t, err)

	assert.Equal(t, "SPY_100", first)
	assert.Equal(t, "SPY_100_1", second)
	assert.Equal(t, "SPY_100_2", third)
	assert.Equal(t, []string{"SPY_100", "SPY_100_1", "SPY_100_2"}, e.Document().Allocations.Names())
}

func TestAddFromTemplate_UnknownKey(t *testing.T) {
	e := newTestEditor(t)
	_, err := e.AddFromTemplate("moon_shot")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Equal(t, int64(0), e.Revision())
}

func TestAddAllocation_FirstBecomesStrategyFallback(t *testing.T) {
	e := newTestEditor(t)

	addValid(t, e, "Growth", "QQQ")
	addValid(t, e, "Safety", "SHV")

	assert.Equal(t, "Growth", e.Document().FallbackAllocation)
}

func TestAddAllocation_CaseInsensitiveCollision(t *testing.T) {
	e := newTestEditor(t)

	addValid(t, e, "Growth", "QQQ")
	used := addValid(t, e, "growth", "SPY")

	assert.Equal(t, "growth_1", used)
}

func TestAddAllocation_EmptyNameIsNoop(t *testing.T) {
	e := newTestEditor(t)

	used, err := e.AddAllocation("   ")
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, 0, e.Document().Allocations.Len())
	assert.Equal(t, int64(0), e.Revision())
}

func TestAddAllocationWithAssets_RejectsBadShape(t *testing.T) {
	e := newTestEditor(t)

	_, err := e.AddAllocationWithAssets("Bad", NamedAllocation{Allocation: Allocation{"SPY": 1.5}})
	assert.ErrorIs(t, err, ErrInvalidAllocation)

	_, err = e.AddAllocationWithAssets("Bad", NamedAllocation{Allocation: Allocation{" ": 1}})
	assert.ErrorIs(t, err, ErrInvalidAllocation)

	_, err = e.AddAllocationWithAssets("Bad", NamedAllocation{Allocation: Allocation{"SPY": 1}, Rebalancing: "hourly"})
	assert.ErrorIs(t, err, ErrInvalidAllocation)

	assert.Equal(t, 0, e.Document().Allocations.Len())
}

func TestAddCustomAllocation(t *testing.T) {
	e := newTestEditor(t)

	name, err := e.AddCustomAllocation("Barbell", NamedAllocation{
		Allocation:  Allocation{"TLT": 0.5, "QQQ": 0.5},
		Rebalancing: CadenceMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, "Barbell", name)

	t.Run("collision is refused", func(t *testing.T) {
		_, err := e.AddCustomAllocation("BARBELL", NamedAllocation{Allocation: Allocation{"SPY": 1}})
		assert.ErrorIs(t, err, ErrAllocationExists)
		assert.Equal(t, 1, e.Document().Allocations.Len())
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		_, err := e.AddCustomAllocation("Half", NamedAllocation{Allocation: Allocation{"SPY": 0.5}})
		assert.ErrorIs(t, err, ErrInvalidAllocation)
	})

	t.Run("name is required", func(t *testing.T) {
		_, err := e.AddCustomAllocation("", NamedAllocation{Allocation: Allocation{"SPY": 1}})
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestRenameAllocation_RewritesEveryReference(t *testing.T) {
	e := newTestEditor(t)

	defensive, err := e.AddFromTemplate("defensive")
	require.NoError(t, err)
	addValid(t, e, "Growth", "QQQ")
	addValid(t, e, "Cash", "SHV")
	rule := addRule(t, e, "Trend")

	require.NoError(t, e.SetFallbackAllocation(defensive))
	connect(t, e, defensive, "Cash")
	connect(t, e, "Growth", defensive)
	require.NoError(t, e.AssignRuleToAllocation(rule, defensive))

	require.NoError(t, e.RenameAllocation(defensive, "SAFE"))

	assert.NotContains(t, string(e.JSON()), "DEFENSIVE")
	doc := e.Document()
	assert.Equal(t, "SAFE", doc.FallbackAllocation)
	assert.Equal(t, []string{"SAFE", "Growth", "Cash"}, doc.Allocations.Names())

	rules, ok := doc.Binding("SAFE")
	require.True(t, ok)
	assert.True(t, rules.Contains("Trend"))

	assert.ElementsMatch(t, []Edge{{Source: "SAFE", Target: "Cash"}, {Source: "Growth", Target: "SAFE"}}, e.Edges())
	edgesJSON, err := json.Marshal(e.Edges())
	require.NoError(t, err)
	assert.NotContains(t, string(edgesJSON), "DEFENSIVE")
}

func TestRenameAllocation_Conflicts(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "Growth", "QQQ")
	addValid(t, e, "Safety", "SHV")

	assert.ErrorIs(t, e.RenameAllocation("Growth", "SAFETY"), ErrAllocationExists)
	assert.ErrorIs(t, e.RenameAllocation("Missing", "Other"), ErrAllocationNotFound)
	assert.ErrorIs(t, e.RenameAllocation("Growth", "  "), ErrInvalidName)

	// A case-only change of the same allocation is allowed
	require.NoError(t, e.RenameAllocation("Growth", "GROWTH"))
	assert.Equal(t, []string{"GROWTH", "Safety"}, e.Document().Allocations.Names())
}

func TestUpdateAllocation(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "Growth", "QQQ")

	require.NoError(t, e.UpdateAllocation("Growth", NamedAllocation{
		Allocation:  Allocation{"QQQ": 0.7, "SPY": 0.2},
		Rebalancing: CadenceWeekly,
	}))

	got, ok := e.Document().Allocations.Get("Growth")
	require.True(t, ok)
	assert.Equal(t, Allocation{"QQQ": 0.7, "SPY": 0.2}, got.Allocation)
	assert.Equal(t, CadenceWeekly, got.Rebalancing)

	assert.ErrorIs(t, e.UpdateAllocation("Nope", NamedAllocation{Allocation: Allocation{"SPY": 1}}), ErrAllocationNotFound)
}

func TestDeleteAllocation_Cascades(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "A", "SPY")
	addValid(t, e, "B", "QQQ")
	addValid(t, e, "C", "SHV")
	rule := addRule(t, e, "Trend")
	connect(t, e, "A", "B")
	connect(t, e, "B", "C")
	require.NoError(t, e.AssignRuleToAllocation(rule, "A"))

	require.NoError(t, e.DeleteAllocation("A"))

	doc := e.Document()
	assert.Equal(t, []string{"B", "C"}, doc.Allocations.Names())
	assert.Equal(t, "B", doc.FallbackAllocation)
	_, bound := doc.Binding("A")
	assert.False(t, bound)
	assert.Equal(t, []Edge{{Source: "B", Target: "C"}}, e.Edges())

	assert.ErrorIs(t, e.DeleteAllocation("A"), ErrAllocationNotFound)
}

func TestDeleteAllocation_LastClearsFallback(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "Only", "SPY")

	require.NoError(t, e.DeleteAllocation("Only"))
	assert.Empty(t, e.Document().FallbackAllocation)
}

func TestSetFallbackAllocation(t *testing.T) {
	e := newTestEditor(t)
	addValid(t, e, "A", "SPY")
	addValid(t, e, "B", "SHV")

	require.NoError(t, e.SetFallbackAllocation("B"))
	assert.Equal(t, "B", e.Document().FallbackAllocation)

	rev := e.Revision()
	require.NoError(t, e.SetFallbackAllocation("B"))
	assert.Equal(t, rev, e.Revision(), "unchanged fallback must not commit")

	assert.ErrorIs(t, e.SetFallbackAllocation("Z"), ErrAllocationNotFound)
}
