package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/tactical/internal/modules/strategy"
	testingpkg "github.com/aristath/tactical/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	db := testingpkg.NewTestDB(t, "backtests")
	return NewRepository(db.Conn(), zerolog.Nop())
}

func pendingRun(id, strategyID string, labels ...string) *Run {
	now := time.Now().UTC()
	run := &Run{ID: id, StrategyID: strategyID, Revision: 3, CreatedAt: now}
	for i, label := range labels {
		run.Chains = append(run.Chains, ChainResult{
			Index:     i,
			Label:     label,
			Status:    StatusPending,
			Request:   strategy.BacktestRequest{Name: label, StartDate: "2020-01-01", EndDate: "2021-01-01"},
			StartedAt: now,
		})
	}
	return run
}

func TestRepository_CreateAndGetRun(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun(pendingRun("run-1", "strat-1", "Strategy 1: a → b", "c")))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "strat-1", run.StrategyID)
	assert.Equal(t, int64(3), run.Revision)
	require.Len(t, run.Chains, 2)
	assert.Equal(t, "Strategy 1: a → b", run.Chains[0].Label)
	assert.Equal(t, "2020-01-01", run.Chains[0].Request.StartDate)
	assert.Equal(t, StatusPending, run.Chains[1].Status)
	assert.Nil(t, run.Chains[1].CompletedAt)
	assert.Equal(t, "running", run.Status())
}

func TestRepository_GetRunNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepository_CompleteChain(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun(pendingRun("run-1", "strat-1", "a", "b")))
	require.NoError(t, repo.MarkRunning("run-1", 0))
	require.NoError(t, repo.MarkRunning("run-1", 1))

	result := &Result{
		PortfolioValues: map[string]float64{"2020-01-01": 100, "2020-01-02": 101},
		Metrics:         map[string]float64{"total_return": 0.01},
	}
	require.NoError(t, repo.CompleteChain("run-1", 0, result, nil))
	require.NoError(t, repo.CompleteChain("run-1", 1, nil, errors.New("engine down")))

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Chains[0].Status)
	require.NotNil(t, run.Chains[0].Result)
	assert.InDelta(t, 0.01, run.Chains[0].Result.Metrics["total_return"], 1e-9)
	assert.NotNil(t, run.Chains[0].CompletedAt)

	assert.Equal(t, StatusFailed, run.Chains[1].Status)
	assert.Equal(t, "engine down", run.Chains[1].Error)
	assert.Nil(t, run.Chains[1].Result)
	assert.Equal(t, "partial", run.Status())
}

func TestRepository_ListRunsCountsOutcomes(t *testing.T) {
	repo := newTestRepository(t)
	first := pendingRun("run-1", "strat-1", "a", "b")
	first.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.CreateRun(first))
	require.NoError(t, repo.CreateRun(pendingRun("run-2", "strat-1", "a")))
	require.NoError(t, repo.CreateRun(pendingRun("run-3", "strat-2", "a")))

	require.NoError(t, repo.CompleteChain("run-1", 0, &Result{}, nil))
	require.NoError(t, repo.CompleteChain("run-1", 1, nil, errors.New("boom")))

	runs, err := repo.ListRuns("strat-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 0, runs[0].Succeeded)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 2, runs[1].ChainCount)
	assert.Equal(t, 1, runs[1].Succeeded)
	assert.Equal(t, 1, runs[1].Failed)
}

func TestRepository_DeleteRunsForStrategy(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun(pendingRun("run-1", "strat-1", "a")))
	require.NoError(t, repo.CreateRun(pendingRun("run-2", "strat-2", "a")))

	n, err := repo.DeleteRunsForStrategy("strat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetRun("run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = repo.GetRun("run-2")
	assert.NoError(t, err)
}

func TestRepository_FailInterrupted(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.CreateRun(pendingRun("run-1", "strat-1", "a", "b", "c")))
	require.NoError(t, repo.MarkRunning("run-1", 1))
	require.NoError(t, repo.CompleteChain("run-1", 2, &Result{}, nil))

	n, err := repo.FailInterrupted()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Chains[0].Status)
	assert.Equal(t, "interrupted by shutdown", run.Chains[0].Error)
	assert.Equal(t, StatusFailed, run.Chains[1].Status)
	assert.Equal(t, StatusSucceeded, run.Chains[2].Status)
}

func TestRepository_RunsSubmittedThroughRunner(t *testing.T) {
	client := newFakeClient()
	client.fail["B"] = errors.New("boom")
	runner, repo, _ := newTestRunner(t, client)

	first, err := runner.Submit("s1", 1, []strategy.BacktestRequest{testRequest("A"), testRequest("B")})
	require.NoError(t, err)
	_, err = runner.Submit("s2", 1, []strategy.BacktestRequest{testRequest("A")})
	require.NoError(t, err)
	runner.Wait()

	runs, err := repo.ListRuns("s1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first.ID, runs[0].ID)
	assert.Equal(t, 2, runs[0].ChainCount)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Failed)

	n, err := repo.DeleteRunsForStrategy("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = repo.GetRun(first.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	// A run stored but never dispatched is recovered as failed
	orphan := &Run{
		ID: "orphan", StrategyID: "s3", CreatedAt: time.Now(),
		Chains: []ChainResult{{Index: 0, Label: "X", Status: StatusPending, Request: testRequest("X"), StartedAt: time.Now()}},
	}
	require.NoError(t, repo.CreateRun(orphan))
	recovered, err := repo.FailInterrupted()
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	stored, err := repo.GetRun("orphan")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Chains[0].Status)
}
