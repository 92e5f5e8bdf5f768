package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tactical/internal/database"
	"github.com/aristath/tactical/internal/di"
	"github.com/aristath/tactical/internal/scheduler"
)

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status         string                     `json:"status"`
	UptimeSeconds  int64                      `json:"uptime_seconds"`
	GoVersion      string                     `json:"go_version"`
	Goroutines     int                        `json:"goroutines"`
	CPUPercent     float64                    `json:"cpu_percent"`
	RAMPercent     float64                    `json:"ram_percent"`
	Strategies     int                        `json:"strategies"`
	BackupsEnabled bool                       `json:"backups_enabled"`
	Databases      map[string]*database.Stats `json:"databases"`
}

// SystemHandlers serves system monitoring and job endpoints
type SystemHandlers struct {
	container *di.Container
	jobs      map[string]scheduler.Job
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. jobs may be nil.
func NewSystemHandlers(container *di.Container, jobs *di.JobInstances, log zerolog.Logger) *SystemHandlers {
	byName := make(map[string]scheduler.Job)
	if jobs != nil {
		for _, job := range []scheduler.Job{
			jobs.CheckWALCheckpoints,
			jobs.CheckCoreDatabases,
			jobs.DailyMaintenance,
			jobs.StrategyBackup,
		} {
			if job != nil {
				byName[job.Name()] = job
			}
		}
	}
	return &SystemHandlers{
		container: container,
		jobs:      byName,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus returns process, host and database status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		CPUPercent:     cpuPercent,
		RAMPercent:     ramPercent,
		BackupsEnabled: h.container.BackupService != nil,
		Databases:      make(map[string]*database.Stats),
	}

	for name, db := range h.container.Databases() {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			response.Status = "degraded"
			continue
		}
		response.Databases[name] = stats
	}

	summaries, err := h.container.StrategyService.List()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count strategies")
		response.Status = "degraded"
	}
	response.Strategies = len(summaries)

	writeJSON(w, http.StatusOK, response, h.log)
}

// getSystemStats samples CPU over 100ms and reads RAM usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// HandleTriggerJob runs a registered job immediately
// POST /api/jobs/{name}/run
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job: "+name, h.log)
		return
	}

	h.log.Info().Str("job", name).Msg("Job triggered via API")
	start := time.Now()
	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
		writeError(w, http.StatusInternalServerError, err.Error(), h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "completed",
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	}, h.log)
}
