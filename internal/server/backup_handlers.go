package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/tactical/internal/reliability"
)

// BackupHandlers serves strategy backup endpoints
type BackupHandlers struct {
	service *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupHandlers creates backup handlers. A nil service answers 503.
func NewBackupHandlers(service *reliability.BackupService, log zerolog.Logger) *BackupHandlers {
	return &BackupHandlers{
		service: service,
		log:     log.With().Str("handler", "backup").Logger(),
	}
}

func (h *BackupHandlers) available(w http.ResponseWriter) bool {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured", h.log)
		return false
	}
	return true
}

// HandleList lists stored backups, newest first
// GET /api/backups
func (h *BackupHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	backups, err := h.service.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, http.StatusBadGateway, err.Error(), h.log)
		return
	}
	writeJSON(w, http.StatusOK, backups, h.log)
}

// HandleCreate uploads a backup now
// POST /api/backups
func (h *BackupHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	info, err := h.service.CreateAndUploadBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create backup")
		writeError(w, http.StatusBadGateway, err.Error(), h.log)
		return
	}
	writeJSON(w, http.StatusCreated, info, h.log)
}

type restoreRequest struct {
	Key string `json:"key"`
}

// HandleRestore recreates every strategy of a backup as new sessions
// POST /api/backups/restore
func (h *BackupHandlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.log)
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required", h.log)
		return
	}

	ids, err := h.service.Restore(r.Context(), req.Key)
	if err != nil {
		h.log.Error().Err(err).Str("key", req.Key).Msg("Failed to restore backup")
		switch {
		case errors.Is(err, reliability.ErrObjectNotFound):
			writeError(w, http.StatusNotFound, err.Error(), h.log)
		case errors.Is(err, reliability.ErrChecksumMismatch):
			writeError(w, http.StatusUnprocessableEntity, err.Error(), h.log)
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), h.log)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":          req.Key,
		"strategy_ids": ids,
	}, h.log)
}
