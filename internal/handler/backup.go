package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/nutriledger/internal/backup"
	"github.com/dukerupert/nutriledger/internal/metrics"
	"github.com/dukerupert/nutriledger/internal/model"
	"github.com/dukerupert/nutriledger/internal/store"
	ws "github.com/dukerupert/nutriledger/internal/websocket"
)

// BackupRunner is the part of backup.Manager the HTTP layer drives.
type BackupRunner interface {
	Enabled() bool
	Status() backup.Status
	RunNow(ctx context.Context) (*model.Backup, error)
	Download(ctx context.Context, id int64) (io.ReadCloser, *model.Backup, error)
}

type BackupHandler struct {
	store   *store.BackupStore
	manager BackupRunner
	hub     *ws.Hub
	logger  *slog.Logger
}

func NewBackupHandler(s *store.BackupStore, m BackupRunner, hub *ws.Hub, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{store: s, manager: m, hub: hub, logger: logger}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	backups, err := h.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, "list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups, "count": len(backups)})
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": h.manager.Enabled(),
		"status":  h.manager.Status(),
	})
}

// Create runs a backup synchronously and returns its record.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	b, err := h.manager.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, backup.ErrInProgress):
		writeMessage(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, r, h.logger, "run backup", err)
		return
	}

	metrics.RecordWrite(ws.EntityBackup, ws.ActionCreated)
	h.hub.Broadcast(ws.NewMessage(ws.EntityBackup, ws.ActionCreated, b.ID, map[string]any{"size_bytes": b.SizeBytes}))

	writeJSON(w, http.StatusCreated, b)
}

func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	body, b, err := h.manager.Download(r.Context(), id)
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, backup.ErrNotReady):
		writeMessage(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, r, h.logger, "download backup", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.Filename))
	if b.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(b.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream backup", "id", id, "error", err)
	}
}
