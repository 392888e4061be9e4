package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/nutriledger/internal/metrics"
	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/store"
	ws "github.com/dukerupert/nutriledger/internal/websocket"
)

type FoodHandler struct {
	store  *store.FoodStore
	hub    *ws.Hub
	logger *slog.Logger
}

func NewFoodHandler(s *store.FoodStore, hub *ws.Hub, logger *slog.Logger) *FoodHandler {
	return &FoodHandler{store: s, hub: hub, logger: logger}
}

func (h *FoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.FoodInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	food, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, "create food", err)
		return
	}

	metrics.RecordWrite(ws.EntityFood, ws.ActionCreated)
	h.hub.Broadcast(ws.NewMessage(ws.EntityFood, ws.ActionCreated, food.ID, map[string]any{"name": food.Name}))
	h.logger.Info("food created", "id", food.ID, "name", food.Name)

	writeJSON(w, http.StatusCreated, map[string]any{"id": food.ID, "food": food})
}

func (h *FoodHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Has("limit") && limit == 0 {
		writeMessage(w, http.StatusBadRequest, "limit must be positive")
		return
	}

	q := r.URL.Query()
	foods, err := h.store.List(r.Context(), model.FoodFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, r, h.logger, "list foods", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"foods": foods})
}

func (h *FoodHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	food, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "get food", err)
		return
	}
	writeJSON(w, http.StatusOK, food)
}

func (h *FoodHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}
