// Package handlers provides HTTP handlers for strategy editing.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds uploaded strategy documents
const maxBodyBytes = 4 << 20

// Handler handles strategy HTTP requests
type Handler struct {
	service        *strategy.Service
	bus            *events.Bus
	originPatterns []string
	log            zerolog.Logger
}

// NewHandler creates a new strategy handler. originPatterns is passed to the
// websocket upgrader; empty means same-origin only.
func NewHandler(service *strategy.Service, bus *events.Bus, originPatterns []string, log zerolog.Logger) *Handler {
	return &Handler{
		service:        service,
		bus:            bus,
		originPatterns: originPatterns,
		log:            log.With().Str("handler", "strategy").Logger(),
	}
}

// mutationResult is the view after an edit plus the name the edit produced, if any
type mutationResult struct {
	Name     string        `json:"name,omitempty"`
	Strategy strategy.View `json:"strategy"`
}

// HandleCreate handles POST /api/strategies
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Document json.RawMessage `json:"document,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var doc *strategy.Document
	if len(req.Document) > 0 && string(req.Document) != "null" {
		parsed, err := strategy.ParseDocument(req.Document)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		doc = &parsed
	}

	view, err := h.service.Create(req.Name, doc)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

// HandleImport handles POST /api/strategies/import?name=...
// The body is a raw strategy document.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	view, err := h.service.Import(r.URL.Query().Get("name"), data)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

// HandleList handles GET /api/strategies
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.List()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// HandleGet handles GET /api/strategies/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// HandleReplace handles PUT /api/strategies/{id}
func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document json.RawMessage `json:"document"`
		Edges    *[]strategy.Edge `json:"edges,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := strategy.ParseDocument(req.Document)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		if req.Edges == nil {
			return "", e.UpdateDocument(doc)
		}
		return "", e.Update(doc, *req.Edges)
	})
}

// HandleDelete handles DELETE /api/strategies/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport handles GET /api/strategies/{id}/export
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := h.service.Export(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "strategy-"+id+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleRevisions handles GET /api/strategies/{id}/revisions
func (h *Handler) HandleRevisions(w http.ResponseWriter, r *http.Request) {
	revisions, err := h.service.Revisions(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, revisions)
}

// HandleRestore handles POST /api/strategies/{id}/revisions/{rev}/restore
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	rev, err := strconv.ParseInt(chi.URLParam(r, "rev"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "revision must be an integer")
		return
	}
	view, err := h.service.Restore(chi.URLParam(r, "id"), rev)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// HandleTemplates handles GET /api/templates
func (h *Handler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": strategy.PortfolioTemplates(),
		"rules":      strategy.RuleTemplates(),
	})
}

// Allocations

// HandleAddAllocation handles POST /api/strategies/{id}/allocations
func (h *Handler) HandleAddAllocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		strategy.NamedAllocation
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		if len(req.Allocation) == 0 && req.Rebalancing == "" {
			return e.AddAllocation(req.Name)
		}
		return e.AddAllocationWithAssets(req.Name, req.NamedAllocation)
	})
}

// HandleAddFromTemplate handles POST /api/strategies/{id}/allocations/template
func (h *Handler) HandleAddFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"template"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return e.AddFromTemplate(req.Template)
	})
}

// HandleAddCustomAllocation handles POST /api/strategies/{id}/allocations/custom
func (h *Handler) HandleAddCustomAllocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		strategy.NamedAllocation
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return e.AddCustomAllocation(req.Name, req.NamedAllocation)
	})
}

// HandleUpdateAllocation handles PUT /api/strategies/{id}/allocations/{name}
func (h *Handler) HandleUpdateAllocation(w http.ResponseWriter, r *http.Request) {
	name, ok := h.pathParam(w, r, "name")
	if !ok {
		return
	}
	var req strategy.NamedAllocation
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return name, e.Actions(name).OnUpdate(req)
	})
}

// HandleRenameAllocation handles POST /api/strategies/{id}/allocations/{name}/rename
func (h *Handler) HandleRenameAllocation(w http.ResponseWriter, r *http.Request) {
	name, ok := h.pathParam(w, r, "name")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return strings.TrimSpace(req.Name), e.Actions(name).OnRename(req.Name)
	})
}

// HandleDeleteAllocation handles DELETE /api/strategies/{id}/allocations/{name}
func (h *Handler) HandleDeleteAllocation(w http.ResponseWriter, r *http.Request) {
	name, ok := h.pathParam(w, r, "name")
	if !ok {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.Actions(name).OnDelete()
	})
}

// HandleSetFallback handles PUT /api/strategies/{id}/fallback
func (h *Handler) HandleSetFallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Allocation string `json:"allocation"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return req.Allocation, e.SetFallbackAllocation(req.Allocation)
	})
}

// Rules

// HandleAddRule handles POST /api/strategies/{id}/rules. The body may be
// empty or a partial rule.
func (h *Handler) HandleAddRule(w http.ResponseWriter, r *http.Request) {
	var req strategy.SwitchingRule
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return e.AddSwitchingRuleWithData(req)
	})
}

// HandleAddRuleFromTemplate handles POST /api/strategies/{id}/rules/template
func (h *Handler) HandleAddRuleFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"template"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return e.AddRuleFromTemplate(req.Template)
	})
}

// HandleUpdateRule handles PUT /api/strategies/{id}/rules/{index}
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	index, ok := h.ruleIndex(w, r)
	if !ok {
		return
	}
	var req strategy.SwitchingRule
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.UpdateSwitchingRule(index, req)
	})
}

// HandleRenameRule handles PATCH /api/strategies/{id}/rules/{index}/name
func (h *Handler) HandleRenameRule(w http.ResponseWriter, r *http.Request) {
	index, ok := h.ruleIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return e.UpdateRuleName(index, req.Name)
	})
}

// HandleSetRuleType handles PATCH /api/strategies/{id}/rules/{index}/type
func (h *Handler) HandleSetRuleType(w http.ResponseWriter, r *http.Request) {
	index, ok := h.ruleIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		RuleType strategy.RuleType `json:"rule_type"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.UpdateRuleType(index, req.RuleType)
	})
}

// HandleSetCondition handles PATCH /api/strategies/{id}/rules/{index}/condition
func (h *Handler) HandleSetCondition(w http.ResponseWriter, r *http.Request) {
	index, ok := h.ruleIndex(w, r)
	if !ok {
		return
	}
	var req strategy.Condition
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.UpdateCondition(index, req)
	})
}

// HandleDeleteRule handles DELETE /api/strategies/{id}/rules/{index}
func (h *Handler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	index, ok := h.ruleIndex(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.DeleteSwitchingRule(index)
	})
}

// Bindings

// HandleSetBinding handles PUT /api/strategies/{id}/bindings/{allocation}.
// The body carries either structured refs or expression text.
func (h *Handler) HandleSetBinding(w http.ResponseWriter, r *http.Request) {
	allocation, ok := h.pathParam(w, r, "allocation")
	if !ok {
		return
	}
	var req struct {
		Rules      *[]strategy.RuleRef `json:"rules,omitempty"`
		Expression string              `json:"expression"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		if req.Rules != nil {
			return allocation, e.Actions(allocation).OnManageRules(*req.Rules)
		}
		return allocation, e.SetRuleExpressionText(allocation, req.Expression)
	})
}

// HandleAssignRule handles POST /api/strategies/{id}/bindings/{allocation}/rules/{rule}
func (h *Handler) HandleAssignRule(w http.ResponseWriter, r *http.Request) {
	allocation, ok := h.pathParam(w, r, "allocation")
	if !ok {
		return
	}
	rule, ok := h.pathParam(w, r, "rule")
	if !ok {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return allocation, e.AssignRuleToAllocation(rule, allocation)
	})
}

// HandleUnassignRule handles DELETE /api/strategies/{id}/bindings/{allocation}/rules/{rule}
func (h *Handler) HandleUnassignRule(w http.ResponseWriter, r *http.Request) {
	allocation, ok := h.pathParam(w, r, "allocation")
	if !ok {
		return
	}
	rule, ok := h.pathParam(w, r, "rule")
	if !ok {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return allocation, e.UnassignRuleFromAllocation(rule, allocation)
	})
}

// Edges

// HandleConnect handles POST /api/strategies/{id}/edges
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req strategy.Edge
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.ConnectAllocations(req.Source, req.Target)
	})
}

// HandleDisconnect handles DELETE /api/strategies/{id}/edges
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req strategy.Edge
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *strategy.Editor) (string, error) {
		return "", e.DisconnectAllocations(req.Source, req.Target)
	})
}

// Decomposition

// HandleChains handles GET /api/strategies/{id}/chains
func (h *Handler) HandleChains(w http.ResponseWriter, r *http.Request) {
	var d strategy.Decomposition
	err := h.service.Read(chi.URLParam(r, "id"), func(e *strategy.Editor) error {
		d = e.Decomposition()
		return nil
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// HandleRequests handles GET /api/strategies/{id}/requests
func (h *Handler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	var requests []strategy.BacktestRequest
	err := h.service.Read(chi.URLParam(r, "id"), func(e *strategy.Editor) error {
		var err error
		requests, err = e.Requests()
		return err
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, requests)
}

// HandleValidate handles POST /api/strategies/{id}/validate
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var verr error
	err := h.service.Read(chi.URLParam(r, "id"), func(e *strategy.Editor) error {
		verr = e.ValidateVerbose()
		return nil
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	findings := strategy.ValidationErrors{}
	var verrs strategy.ValidationErrors
	if errors.As(verr, &verrs) {
		findings = verrs
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  verr == nil,
		"errors": findings,
	})
}

// Helper methods

// mutate runs fn through the service and writes the resulting view
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(e *strategy.Editor) (string, error)) {
	var name string
	view, err := h.service.Mutate(chi.URLParam(r, "id"), func(e *strategy.Editor) error {
		var err error
		name, err = fn(e)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mutationResult{Name: name, Strategy: view})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathParam returns an unescaped URL parameter; allocation and rule names may contain spaces
func (h *Handler) pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	value, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil || value == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return "", false
	}
	return value, true
}

func (h *Handler) ruleIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "rule index must be an integer")
		return 0, false
	}
	return index, true
}

// statusFor maps strategy errors to HTTP status codes
func statusFor(err error) int {
	var verrs strategy.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	case errors.Is(err, strategy.ErrStrategyNotFound),
		errors.Is(err, strategy.ErrAllocationNotFound),
		errors.Is(err, strategy.ErrRuleNotFound),
		errors.Is(err, strategy.ErrEdgeNotFound),
		errors.Is(err, strategy.ErrTemplateNotFound),
		errors.Is(err, strategy.ErrRevisionNotFound):
		return http.StatusNotFound
	case errors.Is(err, strategy.ErrAllocationExists),
		errors.Is(err, strategy.ErrDuplicateEdge):
		return http.StatusConflict
	case errors.Is(err, strategy.ErrInvalidAllocation),
		errors.Is(err, strategy.ErrInvalidName),
		errors.Is(err, strategy.ErrInvalidRule),
		errors.Is(err, strategy.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, strategy.ErrFallbackAssignment),
		errors.Is(err, strategy.ErrSelfLoop),
		errors.Is(err, strategy.ErrMultipleOutgoing),
		errors.Is(err, strategy.ErrCycle):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Strategy request failed")
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
