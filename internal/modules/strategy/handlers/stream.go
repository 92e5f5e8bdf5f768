package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/tactical/internal/events"
	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
)

const streamWriteTimeout = 5 * time.Second

// HandleStream handles GET /api/strategies/{id}/stream. It upgrades to a
// websocket, sends the current view and then a fresh view after every
// committed edit. The stream closes when the strategy is deleted.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.service.Get(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn().Err(err).Str("strategy_id", id).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients never send; CloseRead handles pings and cancels ctx on disconnect
	ctx := conn.CloseRead(r.Context())

	changed := make(chan struct{}, 1)
	deleted := make(chan struct{}, 1)
	forID := func(ch chan struct{}) events.Handler {
		return func(e events.Event) {
			if e.Data["strategy_id"] != id {
				return
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	defer h.bus.Subscribe(events.StrategyChanged, forID(changed))()
	defer h.bus.Subscribe(events.StrategyDeleted, forID(deleted))()

	h.log.Debug().Str("strategy_id", id).Msg("Snapshot stream opened")

	if err := h.send(ctx, conn, view); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-deleted:
			conn.Close(websocket.StatusNormalClosure, "strategy deleted")
			return
		case <-changed:
			view, err := h.service.Get(id)
			if err != nil {
				conn.Close(websocket.StatusNormalClosure, "strategy unavailable")
				return
			}
			if err := h.send(ctx, conn, view); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode stream message")
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.log.Debug().Err(err).Msg("Snapshot stream write failed")
		return err
	}
	return nil
}
