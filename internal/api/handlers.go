// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/logging"
	"github.com/roomscope/roomscope/internal/models"
	"github.com/roomscope/roomscope/internal/validation"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// activityPageSize bounds the activity endpoint; the log is append-only and
// unbounded, the API only ever shows the recent tail.
const activityPageSize = 50

// Store is the read surface the handlers query. *database.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	GetActiveRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetOpenSessionsByRoom(ctx context.Context, roomID string) ([]models.Session, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, int, error)
	GetUserActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLogEntry, error)
	GetStats(ctx context.Context) (*models.Stats, error)
}

// SweepStatus exposes ingest freshness for the health endpoints.
type SweepStatus interface {
	LastSweepTime() time.Time
}

// Handlers holds the read-API endpoints.
type Handlers struct {
	store Store
	sweep SweepStatus
	cfg   *config.APIConfig
}

// NewHandlers creates the handler set. sweep may be nil when the process
// runs without an ingest loop (query-only mode).
func NewHandlers(store Store, sweep SweepStatus, cfg *config.APIConfig) *Handlers {
	return &Handlers{store: store, sweep: sweep, cfg: cfg}
}

// Health reports overall process health: store reachability plus sweep
// freshness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{Status: "ok", Database: "ok", Version: Version}

	if err := h.store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
	}
	if h.sweep != nil {
		status.LastSweep = h.sweep.LastSweepTime()
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// HealthLive is a bare liveness probe, no dependencies checked.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports readiness: the store must answer.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "database is not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListRooms returns active rooms ordered by occupancy.
func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := h.pagination(w, r)
	if !ok {
		return
	}
	rooms, total, err := h.store.GetActiveRooms(r.Context(), limit, offset)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	writeJSON(w, http.StatusOK, models.APIResponse{
		Data:       rooms,
		Pagination: &models.Pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// GetRoom returns one room by id, active or not.
func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.store.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room_not_found", "no such room")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Data: room})
}

// RoomOccupant is one present user in a room with their session timing.
type RoomOccupant struct {
	User     *models.User `json:"user"`
	JoinedAt time.Time    `json:"joined_at"`
	Position int          `json:"position"`
}

// ListRoomUsers returns the users currently present in a room.
func (h *Handlers) ListRoomUsers(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room_not_found", "no such room")
		return
	}

	sessions, err := h.store.GetOpenSessionsByRoom(r.Context(), roomID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	occupants := make([]RoomOccupant, 0, len(sessions))
	for _, s := range sessions {
		user, err := h.store.GetUser(r.Context(), s.UserID)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if user == nil {
			// Session without a user row should not happen; skip rather
			// than fail the whole listing.
			logging.Warn().Str("user_id", s.UserID).Str("room_id", roomID).
				Msg("Open session references missing user")
			continue
		}
		occupants = append(occupants, RoomOccupant{User: user, JoinedAt: s.JoinedAt, Position: s.Position})
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Data: occupants})
}

// GetUser returns one user's persisted profile.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user_not_found", "no such user")
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Data: user})
}

// ListUserSessions returns a user's session history, newest first.
func (h *Handlers) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := h.pagination(w, r)
	if !ok {
		return
	}
	sessions, total, err := h.store.GetUserSessions(r.Context(), chi.URLParam(r, "userID"), limit, offset)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, models.APIResponse{
		Data:       sessions,
		Pagination: &models.Pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// ListUserActivity returns a user's recent activity entries.
func (h *Handlers) ListUserActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.GetUserActivity(r.Context(), chi.URLParam(r, "userID"), activityPageSize)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.ActivityLogEntry{}
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Data: entries})
}

// Stats returns aggregate platform figures.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Data: stats})
}

// pageQuery carries the pagination parameters of a list request.
type pageQuery struct {
	Limit  int `validate:"min=0,max=1000"`
	Offset int `validate:"min=0"`
}

// pagination reads limit/offset query parameters, validates them and
// bounds the limit by configuration. Non-numeric or out-of-range values
// are a client error, not something to silently repair.
func (h *Handlers) pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := pageQuery{Limit: h.cfg.DefaultPageSize}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return 0, 0, false
		}
		q.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "offset must be an integer")
			return 0, 0, false
		}
		q.Offset = n
	}

	if verr := validation.ValidateStruct(&q); verr != nil {
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
		return 0, 0, false
	}

	if q.Limit == 0 {
		q.Limit = h.cfg.DefaultPageSize
	}
	if q.Limit > h.cfg.MaxPageSize {
		q.Limit = h.cfg.MaxPageSize
	}
	return q.Limit, q.Offset, true
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Error().Err(err).Str("path", r.URL.Path).Msg("Read-API query failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "query failed")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.APIError{Code: code, Message: message})
}
