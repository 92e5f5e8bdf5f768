package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/tactical/internal/config"
	"github.com/aristath/tactical/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// strategies.db - strategy sessions and revisions; user work, so durable
	strategiesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "strategies.db"),
		Profile: database.ProfileDurable,
		Name:    "strategies",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize strategies database: %w", err)
	}
	container.StrategiesDB = strategiesDB

	// backtests.db - runs can be recomputed from the strategy
	backtestsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "backtests.db"),
		Profile: database.ProfileStandard,
		Name:    "backtests",
	})
	if err != nil {
		strategiesDB.Close()
		return nil, fmt.Errorf("failed to initialize backtests database: %w", err)
	}
	container.BacktestsDB = backtestsDB

	for _, db := range []*database.DB{strategiesDB, backtestsDB} {
		if err := db.Migrate(); err != nil {
			strategiesDB.Close()
			backtestsDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")
	return container, nil
}
