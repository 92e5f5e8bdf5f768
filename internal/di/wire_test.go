package di

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/tactical/internal/config"
	"github.com/aristath/tactical/internal/modules/backtest"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/aristath/tactical/internal/reliability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:      t.TempDir(),
		Port:         8001,
		MaxRevisions: 50,
		Backtest: config.BacktestConfig{
			EngineURL:      "http://127.0.0.1:1/backtest",
			Timeout:        time.Second,
			DefaultStart:   "2015-01-01",
			DefaultEnd:     "2024-12-31",
			InitialCapital: 10000,
		},
		Backup: config.BackupConfig{
			Prefix:        "tactical/",
			Schedule:      "0 0 3 * * *",
			RetentionDays: 30,
		},
		MaintenanceSchedule: "0 0 2 * * *",
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.FileExists(t, filepath.Join(cfg.DataDir, "strategies.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "backtests.db"))

	dbs := container.Databases()
	assert.Len(t, dbs, 2)
	assert.Contains(t, dbs, "strategies")
	assert.Contains(t, dbs, "backtests")

	_, err = container.StrategiesDB.Conn().Exec("SELECT COUNT(*) FROM strategies")
	assert.NoError(t, err)
	_, err = container.BacktestsDB.Conn().Exec("SELECT COUNT(*) FROM backtest_runs")
	assert.NoError(t, err)
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.DataDir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.DataDir = filepath.Join(blocker, "data")

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}

func TestWire_WithoutBackups(t *testing.T) {
	container, jobs, err := Wire(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.StrategyService)
	assert.NotNil(t, container.BacktestService)
	assert.Nil(t, container.BackupService)
	assert.NotNil(t, jobs.CheckWALCheckpoints)
	assert.NotNil(t, jobs.CheckCoreDatabases)
	assert.NotNil(t, jobs.DailyMaintenance)
	assert.Nil(t, jobs.StrategyBackup)

	assert.NoError(t, jobs.CheckCoreDatabases.Run())
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaintenanceSchedule = "whenever"

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
	assert.Nil(t, jobs)
}

type nopStore struct {
	uploads int
}

func (s *nopStore) Upload(context.Context, string, io.Reader, int64) error {
	s.uploads++
	return nil
}

func (s *nopStore) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (s *nopStore) List(context.Context, string) ([]reliability.ObjectInfo, error) {
	return nil, nil
}

func (s *nopStore) Delete(context.Context, string) error { return nil }

func TestInitializeServices_WithObjectStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Bucket = "strategies"

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	store := &nopStore{}
	container.ObjectStore = store
	require.NoError(t, InitializeServices(context.Background(), container, cfg, zerolog.Nop()))
	require.NotNil(t, container.BackupService)

	jobs, err := RegisterJobs(container, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, jobs.StrategyBackup)

	require.NoError(t, jobs.StrategyBackup.Run())
	assert.Equal(t, 1, store.uploads)
}

func TestInitializeServices_DeletingStrategyRemovesRuns(t *testing.T) {
	cfg := testConfig(t)
	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	container.BacktestClient = stubClient{}
	require.NoError(t, InitializeServices(context.Background(), container, cfg, zerolog.Nop()))

	view, err := container.StrategyService.Create("Tactical", nil)
	require.NoError(t, err)
	_, err = container.StrategyService.Mutate(view.ID, func(e *strategy.Editor) error {
		_, err := e.AddFromTemplate("spy_100")
		return err
	})
	require.NoError(t, err)

	_, err = container.BacktestService.Submit(view.ID)
	require.NoError(t, err)
	container.BacktestRunner.Wait()

	require.NoError(t, container.StrategyService.Delete(view.ID))
	runs, err := container.BacktestRepo.ListRuns(view.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

type stubClient struct{}

func (stubClient) Run(context.Context, strategy.BacktestRequest) (*backtest.Result, error) {
	return &backtest.Result{Metrics: map[string]float64{}}, nil
}
