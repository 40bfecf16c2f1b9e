// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package reconcile implements the session reconciler, the core of Roomscope.
//
// Given a normalized room snapshot and the set of open sessions the store
// already holds, the reconciler computes the minimal open/close operations
// that bring persisted state in line with observed presence. Per (user, room)
// pair the lifecycle is NO_SESSION -> OPEN -> CLOSED; a closed session is
// never reopened, a later re-join creates a new row.
//
// The store is the sole arbiter of session state. The reconciler's open
// -session index is a read-through mirror rebuilt from the store at startup;
// it exists to avoid a store read per room per sweep, never to decide truth.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/logging"
	"github.com/roomscope/roomscope/internal/merge"
	"github.com/roomscope/roomscope/internal/metrics"
	"github.com/roomscope/roomscope/internal/models"
)

// Store is the persistence surface the reconciler needs. *database.DB
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	UpsertRoom(ctx context.Context, r *models.Room) error
	MarkRoomsInactive(ctx context.Context, observedIDs []string) ([]string, error)
	OpenSession(ctx context.Context, s *models.Session) error
	CloseSession(ctx context.Context, s *models.Session) error
	CloseSessionsInRooms(ctx context.Context, roomIDs []string, leftAt time.Time) (int, error)
	GetOpenSessions(ctx context.Context) ([]models.Session, error)
	InsertActivity(ctx context.Context, e *models.ActivityLogEntry) error
}

// Result reports what one reconciliation pass did.
type Result struct {
	Opened int
	Closed int

	// Errors counts per-entity failures that were isolated and skipped.
	// A nonzero count does not fail the pass.
	Errors int
}

func (r *Result) add(other Result) {
	r.Opened += other.Opened
	r.Closed += other.Closed
	r.Errors += other.Errors
}

// Reconciler diffs observed presence against open sessions and writes the
// resulting opens and closes through the store.
type Reconciler struct {
	store Store
	cfg   *config.ReconcileConfig

	// mu guards the open-session index: room id -> user id -> session.
	mu    sync.Mutex
	index map[string]map[string]*models.Session

	// roomMu serializes reconciliation per room. Two overlapping sweeps
	// diffing the same room against interleaved reads of the open set can
	// double-open or double-close a session.
	roomMuMu sync.Mutex
	roomMu   map[string]*sync.Mutex
}

// New creates a Reconciler. Call Rebuild before the first Reconcile so the
// index reflects sessions left open by a previous process.
func New(store Store, cfg *config.ReconcileConfig) *Reconciler {
	return &Reconciler{
		store:  store,
		cfg:    cfg,
		index:  make(map[string]map[string]*models.Session),
		roomMu: make(map[string]*sync.Mutex),
	}
}

// Rebuild replaces the open-session index with the store's view. Run at
// startup; in-memory state carries no durability across restarts.
func (r *Reconciler) Rebuild(ctx context.Context) error {
	sessions, err := r.store.GetOpenSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open sessions: %w", err)
	}

	index := make(map[string]map[string]*models.Session)
	for i := range sessions {
		s := sessions[i]
		byUser, ok := index[s.RoomID]
		if !ok {
			byUser = make(map[string]*models.Session)
			index[s.RoomID] = byUser
		}
		byUser[s.UserID] = &s
	}

	r.mu.Lock()
	r.index = index
	total := 0
	for _, byUser := range index {
		total += len(byUser)
	}
	r.mu.Unlock()

	metrics.OpenSessions.Set(float64(total))
	logging.Info().Int("open_sessions", total).Msg("Rebuilt open-session index from store")
	return nil
}

// Reconcile brings one room's persisted sessions in line with a snapshot.
//
// The open set is captured once, up front, under the room lock; opens and
// closes are both computed from that single capture. A failure on one user
// is logged and skipped, the rest of the room still reconciles.
func (r *Reconciler) Reconcile(ctx context.Context, snap *models.RoomSnapshot) (Result, error) {
	lock := r.lockFor(snap.Room.RoomID)
	lock.Lock()
	defer lock.Unlock()

	var res Result
	now := snap.ObservedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	observed := snap.PresentIDs()

	room := snap.Room
	room.UserCount = len(observed)
	room.IsActive = true
	if room.FirstSeen.IsZero() {
		room.FirstSeen = now
	}
	room.LastActivity = now
	if err := r.retry(ctx, func() error { return r.store.UpsertRoom(ctx, &room) }); err != nil {
		// Without the room row there is nothing meaningful to hang
		// sessions on; fail the whole room and let the next cycle retry.
		metrics.ReconcileErrors.WithLabelValues("room").Inc()
		return res, fmt.Errorf("failed to upsert room %s: %w", room.RoomID, err)
	}

	currentlyOpen := r.openSet(room.RoomID)

	// Payloads can list one user twice in the same room, and the slug
	// fallback collapses distinct id-less users sharing a display name.
	// Only the first observation counts; a second open for the pair would
	// strand the first session's row as permanently active.
	processed := make(map[string]struct{}, len(snap.Present))

	for i := range snap.Present {
		obs := snap.Present[i]

		if _, dup := processed[obs.UserID]; dup {
			continue
		}
		processed[obs.UserID] = struct{}{}

		if err := r.mergeProfile(ctx, obs, now); err != nil {
			logging.Warn().Err(err).Str("user_id", obs.UserID).Str("room_id", room.RoomID).
				Msg("Skipping user: profile merge failed")
			metrics.ReconcileErrors.WithLabelValues("user").Inc()
			res.Errors++
			continue
		}

		if _, open := currentlyOpen[obs.UserID]; open {
			continue
		}
		if err := r.openSession(ctx, obs, room.RoomID, now); err != nil {
			logging.Warn().Err(err).Str("user_id", obs.UserID).Str("room_id", room.RoomID).
				Msg("Skipping user: session open failed")
			metrics.ReconcileErrors.WithLabelValues("session").Inc()
			res.Errors++
			continue
		}
		res.Opened++
	}

	for userID, session := range currentlyOpen {
		if _, present := observed[userID]; present {
			continue
		}
		if err := r.closeSession(ctx, session, now); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Str("room_id", room.RoomID).
				Msg("Session close failed, will retry next cycle")
			metrics.ReconcileErrors.WithLabelValues("session").Inc()
			res.Errors++
			continue
		}
		res.Closed++
	}

	return res, nil
}

// ReconcileAll fans snapshots out to a bounded worker pool. Rooms are
// independent; the pool caps concurrent store pressure, and the per-room
// lock inside Reconcile keeps same-room work serialized regardless.
func (r *Reconciler) ReconcileAll(ctx context.Context, snaps []models.RoomSnapshot) Result {
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(snaps) {
		workers = len(snaps)
	}

	var (
		total Result
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	jobs := make(chan *models.RoomSnapshot)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range jobs {
				res, err := r.Reconcile(ctx, snap)
				if err != nil {
					logging.Error().Err(err).Str("room_id", snap.Room.RoomID).
						Msg("Room reconciliation failed")
					res.Errors++
				}
				mu.Lock()
				total.add(res)
				mu.Unlock()
			}
		}()
	}

	for i := range snaps {
		select {
		case jobs <- &snaps[i]:
		case <-ctx.Done():
			// Committed rooms stay committed; the next sweep corrects
			// whatever this one did not reach.
			close(jobs)
			wg.Wait()
			return total
		}
	}
	close(jobs)
	wg.Wait()
	return total
}

// MarkInactive deactivates every active room absent from a complete sweep
// and closes the sessions still open in those rooms. An empty observed set
// means the sweep produced no data and deactivates nothing.
func (r *Reconciler) MarkInactive(ctx context.Context, observedRoomIDs []string, at time.Time) (Result, error) {
	var res Result
	if len(observedRoomIDs) == 0 {
		return res, nil
	}

	deactivated, err := r.store.MarkRoomsInactive(ctx, observedRoomIDs)
	if err != nil {
		return res, fmt.Errorf("failed to deactivate stale rooms: %w", err)
	}
	if len(deactivated) == 0 {
		return res, nil
	}
	metrics.RoomsDeactivated.Add(float64(len(deactivated)))

	// A room vanishing from the platform means everyone in it left.
	closed, err := r.store.CloseSessionsInRooms(ctx, deactivated, at)
	if err != nil {
		return res, fmt.Errorf("failed to cascade session closure: %w", err)
	}
	res.Closed = closed
	metrics.SessionsClosed.WithLabelValues("room_gone").Add(float64(closed))

	var entries []*models.ActivityLogEntry
	r.mu.Lock()
	for _, roomID := range deactivated {
		for userID := range r.index[roomID] {
			entries = append(entries, &models.ActivityLogEntry{
				UserID:    userID,
				Type:      models.ActivityLeave,
				RoomID:    roomID,
				CreatedAt: at,
			})
		}
		delete(r.index, roomID)
	}
	r.mu.Unlock()
	for _, e := range entries {
		r.logActivity(ctx, e)
	}
	r.publishOpenCount()

	logging.Info().Int("rooms", len(deactivated)).Int("sessions_closed", closed).
		Msg("Deactivated rooms missing from sweep")
	return res, nil
}

// OpenSessionCount returns the size of the in-memory index, for health
// reporting.
func (r *Reconciler) OpenSessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, byUser := range r.index {
		n += len(byUser)
	}
	return n
}

// mergeProfile runs the merge policy for one observation and persists the
// outcome, appending a profile_update activity entry when fields changed.
func (r *Reconciler) mergeProfile(ctx context.Context, obs models.UserObservation, now time.Time) error {
	var stored *models.User
	err := r.retry(ctx, func() error {
		var e error
		stored, e = r.store.GetUser(ctx, obs.UserID)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to read user %s: %w", obs.UserID, err)
	}

	merged := merge.Merge(stored, obs, now)
	if err := r.retry(ctx, func() error { return r.store.UpsertUser(ctx, &merged.User) }); err != nil {
		return fmt.Errorf("failed to persist user %s: %w", obs.UserID, err)
	}

	if merged.Changed() {
		metrics.ProfileUpdates.Inc()
		r.logActivity(ctx, &models.ActivityLogEntry{
			UserID:    obs.UserID,
			Type:      models.ActivityProfileUpdate,
			Changes:   merged.Changes,
			CreatedAt: now,
		})
	}
	return nil
}

func (r *Reconciler) openSession(ctx context.Context, obs models.UserObservation, roomID string, now time.Time) error {
	session := &models.Session{
		UserID:   obs.UserID,
		RoomID:   roomID,
		JoinedAt: now,
		IsActive: true,
		Position: obs.Position,
	}
	if err := r.retry(ctx, func() error { return r.store.OpenSession(ctx, session) }); err != nil {
		return err
	}

	r.mu.Lock()
	byUser, ok := r.index[roomID]
	if !ok {
		byUser = make(map[string]*models.Session)
		r.index[roomID] = byUser
	}
	byUser[obs.UserID] = session
	r.mu.Unlock()
	r.publishOpenCount()

	metrics.SessionsOpened.Inc()
	r.logActivity(ctx, &models.ActivityLogEntry{
		UserID:    obs.UserID,
		Type:      models.ActivityJoin,
		RoomID:    roomID,
		CreatedAt: now,
	})
	return nil
}

func (r *Reconciler) closeSession(ctx context.Context, session *models.Session, now time.Time) error {
	closing := *session
	if clamped := closing.Close(now); clamped {
		metrics.SessionsClamped.Inc()
		logging.Warn().Str("user_id", closing.UserID).Str("room_id", closing.RoomID).
			Time("joined_at", closing.JoinedAt).Time("left_at", now).
			Msg("Close time precedes join time, clamping to zero duration")
	}
	if err := r.retry(ctx, func() error { return r.store.CloseSession(ctx, &closing) }); err != nil {
		return err
	}

	r.mu.Lock()
	if byUser, ok := r.index[closing.RoomID]; ok {
		delete(byUser, closing.UserID)
		if len(byUser) == 0 {
			delete(r.index, closing.RoomID)
		}
	}
	r.mu.Unlock()
	r.publishOpenCount()

	metrics.SessionsClosed.WithLabelValues("leave").Inc()
	r.logActivity(ctx, &models.ActivityLogEntry{
		UserID:    closing.UserID,
		Type:      models.ActivityLeave,
		RoomID:    closing.RoomID,
		CreatedAt: now,
	})
	return nil
}

// logActivity writes one audit entry. Activity is derived analytics; a
// failure here is logged and never fails the reconciliation that caused it.
func (r *Reconciler) logActivity(ctx context.Context, e *models.ActivityLogEntry) {
	if err := r.store.InsertActivity(ctx, e); err != nil {
		metrics.ReconcileErrors.WithLabelValues("activity").Inc()
		logging.Warn().Err(err).Str("user_id", e.UserID).Str("type", e.Type).
			Msg("Failed to write activity entry")
	}
}

// openSet returns a copy of the index entry for one room. The copy keeps the
// step-1 capture stable while per-user writes mutate the live index.
func (r *Reconciler) openSet(roomID string) map[string]*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser := r.index[roomID]
	out := make(map[string]*models.Session, len(byUser))
	for id, s := range byUser {
		out[id] = s
	}
	return out
}

func (r *Reconciler) lockFor(roomID string) *sync.Mutex {
	r.roomMuMu.Lock()
	defer r.roomMuMu.Unlock()
	lock, ok := r.roomMu[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.roomMu[roomID] = lock
	}
	return lock
}

func (r *Reconciler) publishOpenCount() {
	metrics.OpenSessions.Set(float64(r.OpenSessionCount()))
}

// retry runs fn up to cfg.RetryAttempts+1 times with a fixed pause, bailing
// out early when the context ends. Meant for transient store errors only.
func (r *Reconciler) retry(ctx context.Context, fn func() error) error {
	attempts := r.cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	var err error
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
