// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roomscope/roomscope/internal/cache"
	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/logging"
	"github.com/roomscope/roomscope/internal/metrics"
	"github.com/roomscope/roomscope/internal/models"
	"github.com/roomscope/roomscope/internal/reconcile"
	"github.com/roomscope/roomscope/internal/snapshot"
)

// Fetcher retrieves one raw snapshot payload. *Client satisfies it; tests
// substitute a stub.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) ([]byte, error)
}

// SessionReconciler is the reconciliation surface the sweep needs.
type SessionReconciler interface {
	ReconcileAll(ctx context.Context, snaps []models.RoomSnapshot) reconcile.Result
	MarkInactive(ctx context.Context, observedRoomIDs []string, at time.Time) (reconcile.Result, error)
}

// Manager runs the sweep loop: fetch a payload, normalize it, reconcile
// every room, then deactivate rooms the sweep no longer shows.
//
// One sweep at a time; a slow sweep skips ticks rather than stacking.
type Manager struct {
	fetcher    Fetcher
	reconciler SessionReconciler
	cfg        *config.PlatformConfig
	deduper    *cache.PayloadDeduper

	mu        sync.RWMutex
	running   bool
	lastSweep time.Time

	sweepMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a sweep manager.
func NewManager(fetcher Fetcher, reconciler SessionReconciler, cfg *config.PlatformConfig) *Manager {
	return &Manager{
		fetcher:    fetcher,
		reconciler: reconciler,
		cfg:        cfg,
		deduper:    cache.NewPayloadDeduper(64, cfg.PayloadCacheTTL),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the sweep loop. An immediate first sweep runs in the
// background so startup is not blocked on the platform.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sweep manager is already running")
	}
	m.running = true
	m.mu.Unlock()

	logging.Info().Dur("interval", m.cfg.PollInterval).Msg("Starting sweep manager")

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.runSweep(ctx)
	}()
	go m.sweepLoop(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sweep manager is not running")
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Sweep manager stopped")
	return nil
}

// LastSweepTime returns when the last successful sweep completed. Zero until
// one has. Surfaced on the health endpoint as a staleness signal.
func (m *Manager) LastSweepTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSweep
}

// TriggerSweep runs one sweep immediately, serialized against the loop.
func (m *Manager) TriggerSweep(ctx context.Context) {
	m.runSweep(ctx)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.runSweep(ctx)
		}
	}
}

func (m *Manager) runSweep(ctx context.Context) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	start := time.Now()
	outcome := m.sweep(ctx)
	metrics.RecordSweep(outcome, time.Since(start))

	if outcome == "ok" || outcome == "duplicate" {
		m.mu.Lock()
		m.lastSweep = time.Now()
		m.mu.Unlock()
	}
}

// sweep executes one full cycle under the sweep deadline and returns its
// outcome label. Failures never propagate: a failed sweep is a skipped
// sweep, and the next tick corrects whatever staleness it left.
func (m *Manager) sweep(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SweepTimeout)
	defer cancel()

	raw, err := m.fetcher.FetchSnapshot(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Snapshot fetch failed, skipping sweep")
		return "fetch_error"
	}

	// An unchanged payload within the dedupe TTL carries no new presence
	// information. Skip the reconcile work but count the sweep as fresh.
	if m.deduper.Seen(raw) {
		logging.Debug().Msg("Payload unchanged since last sweep, skipping")
		return "duplicate"
	}

	observedAt := time.Now().UTC()
	result, err := snapshot.Normalize(raw, observedAt)
	if err != nil {
		logging.Warn().Err(err).Msg("Snapshot payload unusable, skipping sweep")
		return "parse_error"
	}
	if result.Skipped > 0 {
		metrics.EntriesSkipped.WithLabelValues("room").Add(float64(result.Skipped))
	}

	recon := m.reconciler.ReconcileAll(ctx, result.Rooms)

	// A fetch payload is a complete sweep of the platform's room list, so
	// rooms absent from it are gone. Normalize returning zero rooms is
	// indistinguishable from a broken capture and deactivates nothing.
	observedIDs := make([]string, 0, len(result.Rooms))
	for i := range result.Rooms {
		observedIDs = append(observedIDs, result.Rooms[i].Room.RoomID)
	}
	inactive, err := m.reconciler.MarkInactive(ctx, observedIDs, observedAt)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to deactivate stale rooms")
	}

	if ctx.Err() != nil {
		logging.Warn().Int("rooms", len(result.Rooms)).Msg("Sweep deadline hit, partial state committed")
		return "timeout"
	}

	logging.Info().
		Int("rooms", len(result.Rooms)).
		Int("opened", recon.Opened).
		Int("closed", recon.Closed+inactive.Closed).
		Int("errors", recon.Errors).
		Int("skipped_entries", result.Skipped).
		Msg("Sweep complete")
	return "ok"
}
