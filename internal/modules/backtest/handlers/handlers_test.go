package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/backtest"
	"github.com/aristath/tactical/internal/modules/strategy"
	testingpkg "github.com/aristath/tactical/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{}

func (stubClient) Run(ctx context.Context, req strategy.BacktestRequest) (*backtest.Result, error) {
	r := &backtest.Result{PortfolioValues: map[string]float64{"2024-01-01": 100, "2024-01-02": 101}}
	r.FillSummaryMetrics()
	return r, nil
}

type testEnv struct {
	router     chi.Router
	strategies *strategy.Service
	runner     *backtest.Runner
	bus        *events.Bus
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	strategyDB := testingpkg.NewTestDB(t, "strategies")
	backtestDB := testingpkg.NewTestDB(t, "backtests")

	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())
	defaults := strategy.Defaults{StartDate: "2015-01-01", EndDate: "2024-12-31", InitialCapital: 10000}
	strategies := strategy.NewService(strategy.NewRepository(strategyDB.Conn(), zerolog.Nop()), manager, defaults, 0, zerolog.Nop())

	repo := backtest.NewRepository(backtestDB.Conn(), zerolog.Nop())
	runner := backtest.NewRunner(stubClient{}, repo, manager, 5*time.Second, zerolog.Nop())
	t.Cleanup(runner.Stop)
	service := backtest.NewService(strategies, runner, repo, zerolog.Nop())
	t.Cleanup(service.SubscribeCleanup(bus))

	router := chi.NewRouter()
	NewHandler(service, zerolog.Nop()).RegisterRoutes(router)
	return &testEnv{router: router, strategies: strategies, runner: runner, bus: bus}
}

func (env *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) validStrategy(t *testing.T) string {
	t.Helper()
	view, err := env.strategies.Create("S", nil)
	require.NoError(t, err)
	_, err = env.strategies.Mutate(view.ID, func(e *strategy.Editor) error {
		for _, tpl := range []string{"spy_100", "defensive", "cash"} {
			if _, err := e.AddFromTemplate(tpl); err != nil {
				return err
			}
		}
		return e.ConnectAllocations("SPY_100", "DEFENSIVE")
	})
	require.NoError(t, err)
	return view.ID
}

func TestHandleSubmitAndGet(t *testing.T) {
	env := setupTestEnv(t)
	id := env.validStrategy(t)

	w := env.do("POST", "/strategies/"+id+"/backtests")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var run backtest.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	require.Len(t, run.Chains, 2)
	assert.Equal(t, "Strategy 1: SPY_100 → DEFENSIVE", run.Chains[0].Label)
	assert.Equal(t, "CASH", run.Chains[1].Label)
	assert.Equal(t, int64(4), run.Revision)

	env.runner.Wait()

	w = env.do("GET", "/backtests/"+run.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Run    backtest.Run `json:"run"`
		Status string       `json:"status"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "succeeded", body.Status)
	require.NotNil(t, body.Run.Chains[0].Result)
	assert.InDelta(t, 0.01, body.Run.Chains[0].Result.Metrics[backtest.MetricTotalReturn], 1e-9)

	w = env.do("GET", "/strategies/"+id+"/backtests")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []backtest.RunSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Succeeded)
}

func TestHandleSubmit_InvalidStrategy(t *testing.T) {
	env := setupTestEnv(t)
	view, err := env.strategies.Create("Empty", nil)
	require.NoError(t, err)

	w := env.do("POST", "/strategies/"+view.ID+"/backtests")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleNotFound(t *testing.T) {
	env := setupTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do("POST", "/strategies/missing/backtests").Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/strategies/missing/backtests").Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/backtests/missing").Code)
}

func TestStrategyDeletionRemovesRuns(t *testing.T) {
	env := setupTestEnv(t)
	id := env.validStrategy(t)

	w := env.do("POST", "/strategies/"+id+"/backtests")
	require.Equal(t, http.StatusAccepted, w.Code)
	var run backtest.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	env.runner.Wait()

	require.NoError(t, env.strategies.Delete(id))
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/backtests/"+run.ID).Code)
}
