package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all strategy routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/templates", h.HandleTemplates)

	// Sessions
	r.Get("/strategies", h.HandleList)
	r.Post("/strategies", h.HandleCreate)
	r.Post("/strategies/import", h.HandleImport)
	r.Get("/strategies/{id}", h.HandleGet)
	r.Put("/strategies/{id}", h.HandleReplace)
	r.Delete("/strategies/{id}", h.HandleDelete)
	r.Get("/strategies/{id}/export", h.HandleExport)

	// Revisions
	r.Get("/strategies/{id}/revisions", h.HandleRevisions)
	r.Post("/strategies/{id}/revisions/{rev}/restore", h.HandleRestore)

	// Allocation registry
	r.Post("/strategies/{id}/allocations", h.HandleAddAllocation)
	r.Post("/strategies/{id}/allocations/template", h.HandleAddFromTemplate)
	r.Post("/strategies/{id}/allocations/custom", h.HandleAddCustomAllocation)
	r.Put("/strategies/{id}/allocations/{name}", h.HandleUpdateAllocation)
	r.Post("/strategies/{id}/allocations/{name}/rename", h.HandleRenameAllocation)
	r.Delete("/strategies/{id}/allocations/{name}", h.HandleDeleteAllocation)
	r.Put("/strategies/{id}/fallback", h.HandleSetFallback)

	// Rule catalog
	r.Post("/strategies/{id}/rules", h.HandleAddRule)
	r.Post("/strategies/{id}/rules/template", h.HandleAddRuleFromTemplate)
	r.Put("/strategies/{id}/rules/{index}", h.HandleUpdateRule)
	r.Patch("/strategies/{id}/rules/{index}/name", h.HandleRenameRule)
	r.Patch("/strategies/{id}/rules/{index}/type", h.HandleSetRuleType)
	r.Patch("/strategies/{id}/rules/{index}/condition", h.HandleSetCondition)
	r.Delete("/strategies/{id}/rules/{index}", h.HandleDeleteRule)

	// Bindings
	r.Put("/strategies/{id}/bindings/{allocation}", h.HandleSetBinding)
	r.Post("/strategies/{id}/bindings/{allocation}/rules/{rule}", h.HandleAssignRule)
	r.Delete("/strategies/{id}/bindings/{allocation}/rules/{rule}", h.HandleUnassignRule)

	// Graph
	r.Post("/strategies/{id}/edges", h.HandleConnect)
	r.Delete("/strategies/{id}/edges", h.HandleDisconnect)
	r.Get("/strategies/{id}/chains", h.HandleChains)
	r.Get("/strategies/{id}/requests", h.HandleRequests)
	r.Post("/strategies/{id}/validate", h.HandleValidate)
}

// RegisterStreamRoutes registers the long-lived websocket route. It must not
// sit behind a request timeout.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/strategies/{id}/stream", h.HandleStream)
}
