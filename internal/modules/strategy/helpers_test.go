package strategy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testDefaults = Defaults{StartDate: "2015-01-01", EndDate: "2024-12-31", InitialCapital: 10000}

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	e, err := NewEditor(NewDocument(testDefaults), nil, zerolog.Nop())
	require.NoError(t, err)
	return e
}

// addValid adds an allocation fully weighted on one symbol
func addValid(t *testing.T, e *Editor, name, symbol string) string {
	t.Helper()
	used, err := e.AddAllocationWithAssets(name, NamedAllocation{Allocation: Allocation{symbol: 1}})
	require.NoError(t, err)
	return used
}

func addRule(t *testing.T, e *Editor, name string) string {
	t.Helper()
	used, err := e.AddSwitchingRuleWithData(SwitchingRule{Name: name})
	require.NoError(t, err)
	return used
}

func connect(t *testing.T, e *Editor, source, target string) {
	t.Helper()
	require.NoError(t, e.ConnectAllocations(source, target))
}
