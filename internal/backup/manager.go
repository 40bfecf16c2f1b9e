// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package backup takes periodic exports of the presence store.
//
// Each backup is a timestamped directory produced by DuckDB's EXPORT
// DATABASE, so it restores on any platform regardless of storage-format
// version. Old backups are pruned past the configured retention count.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/logging"
	"github.com/roomscope/roomscope/internal/metrics"
)

// backupPrefix names backup directories; everything else under the backup
// root is left alone.
const backupPrefix = "roomscope-"

// Exporter writes a consistent copy of the store into dir. *database.DB
// satisfies it.
type Exporter interface {
	ExportTo(ctx context.Context, dir string) error
}

// Manager runs the periodic backup loop.
//
// One backup at a time; a slow export skips ticks rather than stacking.
type Manager struct {
	exporter Exporter
	cfg      *config.BackupConfig

	mu         sync.RWMutex
	running    bool
	lastBackup time.Time

	backupMu sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a backup manager.
func NewManager(exporter Exporter, cfg *config.BackupConfig) *Manager {
	return &Manager{
		exporter: exporter,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the backup loop. The first backup waits a full interval;
// startup already has the sweep's initial load to absorb.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("backup manager is already running")
	}
	m.running = true
	m.mu.Unlock()

	if err := os.MkdirAll(m.cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	logging.Info().Dur("interval", m.cfg.Interval).Str("dir", m.cfg.Dir).
		Int("keep", m.cfg.Keep).Msg("Starting backup manager")

	m.wg.Add(1)
	go m.backupLoop(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight backup to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("backup manager is not running")
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Backup manager stopped")
	return nil
}

// LastBackupTime returns when the last successful backup completed. Zero
// until one has.
func (m *Manager) LastBackupTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBackup
}

// TriggerBackup runs one backup immediately, serialized against the loop.
func (m *Manager) TriggerBackup(ctx context.Context) error {
	return m.runBackup(ctx)
}

func (m *Manager) backupLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			if err := m.runBackup(ctx); err != nil {
				logging.Error().Err(err).Msg("Backup failed")
			}
		}
	}
}

func (m *Manager) runBackup(ctx context.Context) error {
	m.backupMu.Lock()
	defer m.backupMu.Unlock()

	start := time.Now()
	dir := filepath.Join(m.cfg.Dir, backupPrefix+start.UTC().Format("20060102T150405Z"))

	if err := m.exporter.ExportTo(ctx, dir); err != nil {
		metrics.BackupsTotal.WithLabelValues("error").Inc()
		// A half-written export is useless and would count against
		// retention; drop it.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logging.Warn().Err(rmErr).Str("dir", dir).Msg("Failed to remove partial backup")
		}
		return fmt.Errorf("export to %s: %w", dir, err)
	}

	m.mu.Lock()
	m.lastBackup = time.Now()
	m.mu.Unlock()

	metrics.BackupsTotal.WithLabelValues("ok").Inc()
	logging.Info().Str("dir", dir).Dur("elapsed", time.Since(start)).Msg("Backup complete")

	if err := m.prune(); err != nil {
		logging.Warn().Err(err).Msg("Backup retention pruning failed")
	}
	return nil
}

// prune removes the oldest backups beyond the retention count. Directory
// names embed UTC timestamps, so lexical order is chronological.
func (m *Manager) prune() error {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read backup directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) <= m.cfg.Keep {
		return nil
	}

	sort.Strings(backups)
	for _, name := range backups[:len(backups)-m.cfg.Keep] {
		path := filepath.Join(m.cfg.Dir, name)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove old backup %s: %w", path, err)
		}
		logging.Debug().Str("dir", path).Msg("Pruned old backup")
	}
	return nil
}
