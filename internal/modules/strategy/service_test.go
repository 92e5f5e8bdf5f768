package strategy

import (
	"errors"
	"testing"

	"github.com/aristath/tactical/internal/events"
	testingpkg "github.com/aristath/tactical/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *events.Bus, *Repository) {
	t.Helper()
	db := testingpkg.NewTestDB(t, "strategies")
	repo := NewRepository(db.Conn(), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	svc := NewService(repo, events.NewManager(bus, zerolog.Nop()), testDefaults, 0, zerolog.Nop())
	return svc, bus, repo
}

func TestService_CreateAndMutate(t *testing.T) {
	svc, bus, repo := newTestService(t)

	var changed []events.Event
	bus.Subscribe(events.StrategyChanged, func(e events.Event) { changed = append(changed, e) })

	view, err := svc.Create("Tactical", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Tactical", view.Name)
	assert.Equal(t, testDefaults.StartDate, view.Document.StartDate)
	assert.False(t, view.Valid, "an empty strategy has no fallback")

	view, err = svc.Mutate(view.ID, func(e *Editor) error {
		_, err := e.AddFromTemplate("spy_100")
		return err
	})
	require.NoError(t, err)
	assert.True(t, view.Valid)
	assert.Equal(t, int64(1), view.Revision)
	assert.Equal(t, "add_allocation", view.LastUpdated)

	require.Len(t, changed, 1)
	assert.Equal(t, view.ID, changed[0].Data["strategy_id"])

	rec, err := repo.Load(view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision)
	assert.Equal(t, []string{"SPY_100"}, rec.Document.Allocations.Names())
}

func TestService_FailedMutationRollsBack(t *testing.T) {
	svc, _, _ := newTestService(t)
	view, err := svc.Create("S", nil)
	require.NoError(t, err)

	_, err = svc.Mutate(view.ID, func(e *Editor) error {
		if _, err := e.AddAllocation("A"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := svc.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Document.Allocations.Len())
	assert.Equal(t, int64(0), got.Revision)
}

func TestService_NoopMutationDoesNotPersist(t *testing.T) {
	svc, bus, repo := newTestService(t)
	view, err := svc.Create("S", nil)
	require.NoError(t, err)

	calls := 0
	bus.Subscribe(events.StrategyChanged, func(events.Event) { calls++ })

	_, err = svc.Mutate(view.ID, func(e *Editor) error {
		_, err := e.AddAllocation("")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	revisions, err := repo.Revisions(view.ID)
	require.NoError(t, err)
	assert.Len(t, revisions, 1)
}

func TestService_ReloadsFromStorage(t *testing.T) {
	svc, bus, repo := newTestService(t)
	view, err := svc.Create("S", nil)
	require.NoError(t, err)
	_, err = svc.Mutate(view.ID, func(e *Editor) error {
		if _, err := e.AddFromTemplate("spy_100"); err != nil {
			return err
		}
		if _, err := e.AddFromTemplate("cash"); err != nil {
			return err
		}
		return e.ConnectAllocations("SPY_100", "CASH")
	})
	require.NoError(t, err)

	fresh := NewService(repo, events.NewManager(bus, zerolog.Nop()), testDefaults, 0, zerolog.Nop())
	got, err := fresh.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, got.ID)
	assert.Equal(t, int64(3), got.Revision)
	assert.Equal(t, []Edge{{Source: "SPY_100", Target: "CASH"}}, got.Edges)
	require.Len(t, got.Chains, 1)
	assert.Equal(t, "Strategy 1: SPY_100 → CASH", got.Chains[0].Label)

	_, err = fresh.Get("nope")
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestService_RestoreRevision(t *testing.T) {
	svc, _, _ := newTestService(t)
	view, err := svc.Create("S", nil)
	require.NoError(t, err)
	_, err = svc.Mutate(view.ID, func(e *Editor) error {
		_, err := e.AddFromTemplate("spy_100")
		return err
	})
	require.NoError(t, err)
	_, err = svc.Mutate(view.ID, func(e *Editor) error {
		return e.RenameAllocation("SPY_100", "Core")
	})
	require.NoError(t, err)

	restored, err := svc.Restore(view.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), restored.Revision)
	assert.Equal(t, "restore", restored.LastUpdated)
	assert.Equal(t, []string{"SPY_100"}, restored.Document.Allocations.Names())

	revisions, err := svc.Revisions(view.ID)
	require.NoError(t, err)
	assert.Len(t, revisions, 4)

	_, err = svc.Restore(view.ID, 42)
	assert.ErrorIs(t, err, ErrRevisionNotFound)
}

func TestService_ImportExport(t *testing.T) {
	svc, _, _ := newTestService(t)
	e := buildSampleStrategy(t)
	data, err := e.Document().Export()
	require.NoError(t, err)

	view, err := svc.Import("Imported", data)
	require.NoError(t, err)
	assert.True(t, view.Valid)

	exported, err := svc.Export(view.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(exported))

	_, err = svc.Import("Bad", []byte("{"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestService_DeleteAndExportAll(t *testing.T) {
	svc, bus, _ := newTestService(t)

	var deleted []events.Event
	bus.Subscribe(events.StrategyDeleted, func(e events.Event) { deleted = append(deleted, e) })

	a, err := svc.Create("A", nil)
	require.NoError(t, err)
	_, err = svc.Create("B", nil)
	require.NoError(t, err)

	all, err := svc.ExportAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, svc.Delete(a.ID))
	require.Len(t, deleted, 1)
	assert.Equal(t, a.ID, deleted[0].Data["strategy_id"])

	_, err = svc.Get(a.ID)
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	all, err = svc.ExportAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "B", all[0].Name)
}

func TestService_PrunesRevisions(t *testing.T) {
	db := testingpkg.NewTestDB(t, "strategies")
	repo := NewRepository(db.Conn(), zerolog.Nop())
	svc := NewService(repo, events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()), testDefaults, 2, zerolog.Nop())

	view, err := svc.Create("S", nil)
	require.NoError(t, err)
	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Mutate(view.ID, func(e *Editor) error {
			_, err := e.AddAllocation(name)
			return err
		})
		require.NoError(t, err)
	}

	revisions, err := svc.Revisions(view.ID)
	require.NoError(t, err)
	assert.Len(t, revisions, 2)
}

func TestService_ImportExportedKeepsEdges(t *testing.T) {
	svc, _, _ := newTestService(t)
	e := buildSampleStrategy(t)
	data, err := e.Document().Export()
	require.NoError(t, err)

	view, err := svc.ImportExported(Exported{Name: "Restored", Document: data, Edges: e.Edges()})
	require.NoError(t, err)
	assert.Equal(t, "Restored", view.Name)
	assert.Equal(t, e.Edges(), view.Edges)
	assert.Equal(t, "load", view.LastUpdated)

	revisions, err := svc.Revisions(view.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, "import", revisions[0].Operation)

	_, err = svc.ImportExported(Exported{Name: "Broken", Document: []byte("nope")})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
