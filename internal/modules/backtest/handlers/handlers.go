// Package handlers provides HTTP handlers for backtest runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/tactical/internal/modules/backtest"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles backtest HTTP requests
type Handler struct {
	service *backtest.Service
	log     zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(service *backtest.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleSubmit handles POST /api/strategies/{id}/backtests
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Submit(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, run)
}

// HandleList handles GET /api/strategies/{id}/backtests
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// HandleGet handles GET /api/backtests/{runID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"status": run.Status(),
	})
}

func statusFor(err error) int {
	var verrs strategy.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, backtest.ErrNoChains):
		return http.StatusUnprocessableEntity
	case errors.Is(err, strategy.ErrStrategyNotFound), errors.Is(err, backtest.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Backtest request failed")
	}
	h.writeError(w, status, err.Error())
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
