// Package main is the entry point for the tactical strategy service.
// It serves the strategy graph editor API, dispatches per-chain backtests to
// the external engine and runs scheduled backups and database maintenance.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tactical/internal/config"
	"github.com/aristath/tactical/internal/di"
	"github.com/aristath/tactical/internal/server"
	"github.com/aristath/tactical/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("engine_url", cfg.Backtest.EngineURL).
		Msg("Starting tactical")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Refuse to serve on top of a corrupted database
	if err := container.Scheduler.RunNow(jobs.CheckCoreDatabases); err != nil {
		log.Fatal().Err(err).Msg("Database integrity check failed")
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stops the scheduler and in-flight backtests, then closes the databases
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close databases cleanly")
	}

	log.Info().Msg("Server stopped")
}
