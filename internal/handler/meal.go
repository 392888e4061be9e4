package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/nutriledger/internal/metrics"
	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/store"
	ws "github.com/dukerupert/nutriledger/internal/websocket"
)

type MealHandler struct {
	store  *store.MealStore
	hub    *ws.Hub
	logger *slog.Logger
}

func NewMealHandler(s *store.MealStore, hub *ws.Hub, logger *slog.Logger) *MealHandler {
	return &MealHandler{store: s, hub: hub, logger: logger}
}

func (h *MealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.MealInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	id, totals, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, "create meal", err)
		return
	}

	h.changed(ws.ActionCreated, id)
	h.logger.Info("meal created", "id", id, "items", len(in.Items))

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     id,
		"name":   strings.TrimSpace(in.Name),
		"totals": totals,
	})
}

func (h *MealHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Has("limit") && limit == 0 {
		writeMessage(w, http.StatusBadRequest, "limit must be positive")
		return
	}

	meals, err := h.store.List(r.Context(), model.MealFilter{
		Type:   r.URL.Query().Get("type"),
		Active: active,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, h.logger, "list meals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meals": meals, "count": len(meals)})
}

func (h *MealHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	meal, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "get meal", err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (h *MealHandler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListTypes(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "list meal types", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}

// Update changes scalar fields only. Items are fixed once a meal exists.
func (h *MealHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var u model.MealUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	meal, err := h.store.Update(r.Context(), id, u)
	if err != nil {
		writeError(w, r, h.logger, "update meal", err)
		return
	}

	h.changed(ws.ActionUpdated, id)
	writeJSON(w, http.StatusOK, meal)
}

func (h *MealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "delete meal", err)
		return
	}

	h.changed(ws.ActionDeleted, id)
	h.logger.Info("meal deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func (h *MealHandler) changed(action string, id int64) {
	metrics.RecordWrite(ws.EntityMeal, action)
	h.hub.Broadcast(ws.NewMessage(ws.EntityMeal, action, id, nil))
}
