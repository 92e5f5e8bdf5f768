// Package di provides dependency injection type definitions.
//
// Container holds every application dependency. It is built by Wire() and
// passed to the HTTP server and main for access to services.
package di

import (
	"github.com/aristath/tactical/internal/database"
	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/backtest"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/aristath/tactical/internal/reliability"
	"github.com/aristath/tactical/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	StrategiesDB *database.DB // Strategy sessions and revision history
	BacktestsDB  *database.DB // Backtest runs and per-chain outcomes

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Strategy graph
	StrategyRepo    *strategy.Repository
	StrategyService *strategy.Service

	// Backtests
	BacktestRepo    *backtest.Repository
	BacktestClient  backtest.Client
	BacktestRunner  *backtest.Runner
	BacktestService *backtest.Service

	// Backups; both nil when no object store is configured
	ObjectStore   reliability.ObjectStore
	BackupService *reliability.BackupService

	Scheduler *scheduler.Scheduler

	unsubscribe []func()
}

// Databases returns every open database keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.StrategiesDB != nil {
		dbs[c.StrategiesDB.Name()] = c.StrategiesDB
	}
	if c.BacktestsDB != nil {
		dbs[c.BacktestsDB.Name()] = c.BacktestsDB
	}
	return dbs
}

// Close stops background work and closes the databases. It is safe to call
// on a partially wired container.
func (c *Container) Close() error {
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	c.unsubscribe = nil

	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.BacktestRunner != nil {
		c.BacktestRunner.Stop()
	}

	var firstErr error
	for _, db := range []*database.DB{c.StrategiesDB, c.BacktestsDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// JobInstances holds job references for manual triggering via API
type JobInstances struct {
	CheckWALCheckpoints scheduler.Job
	CheckCoreDatabases  scheduler.Job
	DailyMaintenance    scheduler.Job
	StrategyBackup      scheduler.Job // nil when backups are disabled
}
