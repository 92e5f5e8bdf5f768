package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers backtest routes. They share the /strategies
// prefix with the strategy routes, so both register on the same router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/strategies/{id}/backtests", h.HandleSubmit)
	r.Get("/strategies/{id}/backtests", h.HandleList)
	r.Get("/backtests/{runID}", h.HandleGet)
}
