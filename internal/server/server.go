// Package server provides the HTTP server and routing for the tactical strategy service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tactical/internal/config"
	"github.com/aristath/tactical/internal/di"
	backtesthandlers "github.com/aristath/tactical/internal/modules/backtest/handlers"
	strategyhandlers "github.com/aristath/tactical/internal/modules/strategy/handlers"
)

const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
	Jobs      *di.JobInstances
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container

	systemHandlers *SystemHandlers
	backupHandlers *BackupHandlers
	eventsStream   *EventsStreamHandler
	strategies     *strategyhandlers.Handler
	backtests      *backtesthandlers.Handler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	var originPatterns []string
	if cfg.Config.DevMode {
		originPatterns = []string{"*"}
	}

	c := cfg.Container
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		container:      c,
		systemHandlers: NewSystemHandlers(c, cfg.Jobs, cfg.Log),
		backupHandlers: NewBackupHandlers(c.BackupService, cfg.Log),
		eventsStream:   NewEventsStreamHandler(c.EventBus, cfg.Log),
		strategies:     strategyhandlers.NewHandler(c.StrategyService, c.EventBus, originPatterns, cfg.Log),
		backtests:      backtesthandlers.NewHandler(c.BacktestService, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	// No write timeout: websocket and SSE streams are long-lived. Regular
	// routes are bounded by the Timeout middleware instead.
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware shared by every route
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived streams
		r.Get("/events/stream", s.eventsStream.ServeHTTP)
		s.strategies.RegisterStreamRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			if !s.cfg.DevMode {
				r.Use(middleware.Compress(5))
			}

			s.strategies.RegisterRoutes(r)
			s.backtests.RegisterRoutes(r)

			r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
			r.Post("/jobs/{name}/run", s.systemHandlers.HandleTriggerJob)

			r.Get("/backups", s.backupHandlers.HandleList)
			r.Post("/backups", s.backupHandlers.HandleCreate)
			r.Post("/backups/restore", s.backupHandlers.HandleRestore)
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "tactical",
	}, s.log)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string, log zerolog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, log)
}
