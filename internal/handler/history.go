package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/nutriledger/internal/metrics"
	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/store"
	ws "github.com/dukerupert/nutriledger/internal/websocket"
)

type HistoryHandler struct {
	store  *store.HistoryStore
	hub    *ws.Hub
	logger *slog.Logger
}

func NewHistoryHandler(s *store.HistoryStore, hub *ws.Hub, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: s, hub: hub, logger: logger}
}

func (h *HistoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.HistoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	id, totals, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, "create history entry", err)
		return
	}

	metrics.RecordWrite(ws.EntityHistory, ws.ActionCreated)
	h.hub.Broadcast(ws.NewMessage(ws.EntityHistory, ws.ActionCreated, id, map[string]any{"date": in.Date}))
	h.logger.Info("history entry created", "id", id, "date", in.Date)

	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "totals": totals})
}

// List accepts date=YYYY-MM-DD, type=a,b (any of), tags=x,y (all of) and
// text (name or description).
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.store.List(r.Context(), model.HistoryFilter{
		Date:  q.Get("date"),
		Types: store.SplitList(q.Get("type")),
		Tags:  store.SplitList(q.Get("tags")),
		Text:  q.Get("text"),
	})
	if err != nil {
		writeError(w, r, h.logger, "list history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "get history entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "delete history entry", err)
		return
	}

	metrics.RecordWrite(ws.EntityHistory, ws.ActionDeleted)
	h.hub.Broadcast(ws.NewMessage(ws.EntityHistory, ws.ActionDeleted, id, nil))
	w.WriteHeader(http.StatusNoContent)
}
