package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/dukerupert/nutriledger/internal/backup"
	"github.com/dukerupert/nutriledger/internal/handler"
	"github.com/dukerupert/nutriledger/internal/metrics"
	"github.com/dukerupert/nutriledger/internal/middleware"
	"github.com/dukerupert/nutriledger/internal/store"
	ws "github.com/dukerupert/nutriledger/internal/websocket"
)

// Options tunes the HTTP surface.
type Options struct {
	// RateLimit and RateBurst bound write requests per client.
	RateLimit float64
	RateBurst int
	Backup    backup.Config
}

type Server struct {
	hub         *ws.Hub
	foodStore   *store.FoodStore
	foodH       *handler.FoodHandler
	mealH       *handler.MealHandler
	historyH    *handler.HistoryHandler
	backupH     *handler.BackupHandler
	backups     *backup.Manager
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	foodStore := store.NewFoodStore(db)
	mealStore := store.NewMealStore(db)
	historyStore := store.NewHistoryStore(db)
	backupStore := store.NewBackupStore(db)

	backups := backup.NewManager(opts.Backup, db, backupStore, func(st backup.Status) {
		hub.Broadcast(ws.NewMessage(ws.EntityBackup, ws.ActionUpdated, 0, map[string]any{
			"state": st.State,
			"error": st.Error,
		}))
	}, logger.With("component", "backup"))

	return &Server{
		hub:         hub,
		foodStore:   foodStore,
		foodH:       handler.NewFoodHandler(foodStore, hub, logger.With("component", "food")),
		mealH:       handler.NewMealHandler(mealStore, hub, logger.With("component", "meal")),
		historyH:    handler.NewHistoryHandler(historyStore, hub, logger.With("component", "history")),
		backupH:     handler.NewBackupHandler(backupStore, backups, hub, logger.With("component", "backup")),
		backups:     backups,
		rateLimiter: middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Backups returns the backup manager so the caller can run its schedule.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Hub returns the change feed hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	// Food catalog
	mux.HandleFunc("POST /api/foods", s.rateLimited(s.foodH.Create))
	mux.HandleFunc("GET /api/foods", s.foodH.List)
	mux.HandleFunc("GET /api/foods/{id}", s.foodH.Get)
	mux.HandleFunc("GET /api/categories", s.foodH.Categories)

	// Meals
	mux.HandleFunc("POST /api/meals", s.rateLimited(s.mealH.Create))
	mux.HandleFunc("GET /api/meals", s.mealH.List)
	mux.HandleFunc("GET /api/meals/types", s.mealH.Types)
	mux.HandleFunc("GET /api/meals/{id}", s.mealH.Get)
	mux.HandleFunc("PUT /api/meals/{id}", s.rateLimited(s.mealH.Update))
	mux.HandleFunc("DELETE /api/meals/{id}", s.rateLimited(s.mealH.Delete))

	// Consumption history
	mux.HandleFunc("POST /api/history", s.rateLimited(s.historyH.Create))
	mux.HandleFunc("GET /api/history", s.historyH.List)
	mux.HandleFunc("GET /api/history/{id}", s.historyH.Get)
	mux.HandleFunc("DELETE /api/history/{id}", s.rateLimited(s.historyH.Delete))

	// Backups
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.rateLimited(s.backupH.Create))
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)

	var h http.Handler = mux
	h = metrics.InstrumentHandler(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.foodStore.Count(r.Context())
	if err != nil {
		s.logger.Error("health check", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"database":    "connected",
		"foods_count": count,
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	wrapped := rl(h)
	return wrapped.ServeHTTP
}
