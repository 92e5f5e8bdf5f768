package scheduler

import (
	"fmt"

	"github.com/aristath/tactical/internal/database"
	"github.com/rs/zerolog"
)

// CheckCoreDatabasesJob verifies integrity of the strategy and backtest databases
type CheckCoreDatabasesJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewCheckCoreDatabasesJob creates a new CheckCoreDatabasesJob
func NewCheckCoreDatabasesJob(databases map[string]*database.DB, log zerolog.Logger) *CheckCoreDatabasesJob {
	return &CheckCoreDatabasesJob{
		databases: databases,
		log:       log.With().Str("job", "check_core_databases").Logger(),
	}
}

// Name returns the job name
func (j *CheckCoreDatabasesJob) Name() string {
	return "check_core_databases"
}

// Run runs PRAGMA integrity_check on every database. Corruption is not
// recoverable here, so the first failure is returned.
func (j *CheckCoreDatabasesJob) Run() error {
	for name, db := range j.databases {
		if db == nil {
			j.log.Warn().Str("database", name).Msg("Database not initialized, skipping")
			continue
		}

		var result string
		if err := db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
		if result != "ok" {
			j.log.Error().
				Str("database", name).
				Str("result", result).
				Msg("Core database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %s", name, result)
		}

		j.log.Debug().Str("database", name).Msg("Database integrity OK")
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("All core databases integrity check passed")
	return nil
}
