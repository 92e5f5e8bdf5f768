package di

import (
	"fmt"
	"time"

	"github.com/aristath/tactical/internal/config"
	"github.com/aristath/tactical/internal/reliability"
	"github.com/aristath/tactical/internal/scheduler"
	"github.com/rs/zerolog"
)

const walCheckSchedule = "0 */30 * * * *"

// RegisterJobs creates the background jobs and schedules them. The scheduler
// is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container services must be initialized first")
	}

	databases := container.Databases()
	instances := &JobInstances{
		CheckWALCheckpoints: scheduler.NewCheckWALCheckpointsJob(databases, log),
		CheckCoreDatabases:  scheduler.NewCheckCoreDatabasesJob(databases, log),
		DailyMaintenance:    reliability.NewDailyMaintenanceJob(databases, cfg.DataDir, log),
	}

	if err := container.Scheduler.AddJob(walCheckSchedule, instances.CheckWALCheckpoints); err != nil {
		return nil, err
	}
	if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, instances.DailyMaintenance); err != nil {
		return nil, err
	}

	if container.BackupService != nil {
		instances.StrategyBackup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, 5*time.Minute, log)
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, instances.StrategyBackup); err != nil {
			return nil, err
		}
	}

	return instances, nil
}
