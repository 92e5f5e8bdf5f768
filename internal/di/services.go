package di

import (
	"context"
	"fmt"

	"github.com/aristath/tactical/internal/config"
	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/backtest"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/aristath/tactical/internal/reliability"
	"github.com/aristath/tactical/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates repositories and services on top of the
// container's databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.StrategiesDB == nil || container.BacktestsDB == nil {
		return fmt.Errorf("container databases must be initialized first")
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Strategy graph
	container.StrategyRepo = strategy.NewRepository(container.StrategiesDB.Conn(), log)
	container.StrategyService = strategy.NewService(
		container.StrategyRepo,
		container.EventManager,
		strategy.Defaults{
			StartDate:      cfg.Backtest.DefaultStart,
			EndDate:        cfg.Backtest.DefaultEnd,
			InitialCapital: cfg.Backtest.InitialCapital,
		},
		cfg.MaxRevisions,
		log,
	)

	// Backtests
	container.BacktestRepo = backtest.NewRepository(container.BacktestsDB.Conn(), log)
	if container.BacktestClient == nil {
		container.BacktestClient = backtest.NewHTTPClient(cfg.Backtest.EngineURL, cfg.Backtest.Timeout, log)
	}
	container.BacktestRunner = backtest.NewRunner(
		container.BacktestClient,
		container.BacktestRepo,
		container.EventManager,
		cfg.Backtest.Timeout,
		log,
	)
	container.BacktestService = backtest.NewService(
		container.StrategyService,
		container.BacktestRunner,
		container.BacktestRepo,
		log,
	)
	container.unsubscribe = append(container.unsubscribe, container.BacktestService.SubscribeCleanup(container.EventBus))

	if err := container.BacktestService.RecoverInterrupted(); err != nil {
		log.Warn().Err(err).Msg("Failed to recover interrupted backtest chains")
	}

	// Backups
	if cfg.Backup.Enabled() && container.ObjectStore == nil {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create object store client: %w", err)
		}
		container.ObjectStore = store
	}
	if container.ObjectStore != nil {
		container.BackupService = reliability.NewBackupService(
			container.ObjectStore,
			container.StrategyService,
			cfg.Backup.Prefix,
			container.EventManager,
			log,
		)
	}

	container.Scheduler = scheduler.New(log)

	log.Info().
		Bool("backups_enabled", container.BackupService != nil).
		Msg("Services initialized")
	return nil
}
