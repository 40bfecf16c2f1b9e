// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package database

import (
	"context"
	"fmt"
	"time"
)

// createSchema creates tables and indexes. All columns are defined in the
// initial CREATE TABLE statements; the schema is the single source of truth.
//
// Open-session uniqueness (at most one row per (user_id, room_id) with
// left_at IS NULL) is enforced at the application level by the reconciler's
// per-room serialization, not by a database constraint. DuckDB has no partial
// unique indexes, and the reconciler is the only writer of sessions.
func (db *DB) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			avatar TEXT,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			followers INTEGER NOT NULL DEFAULT 0,
			following INTEGER NOT NULL DEFAULT 0,
			friends INTEGER NOT NULL DEFAULT 0,
			supporter_tier INTEGER NOT NULL DEFAULT 0,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL,
			total_sessions INTEGER NOT NULL DEFAULT 0,
			total_duration BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS rooms (
			room_id TEXT PRIMARY KEY,
			topic TEXT,
			language TEXT,
			language2 TEXT,
			level TEXT NOT NULL DEFAULT 'any_level',
			max_users INTEGER NOT NULL DEFAULT -1,
			is_locked BOOLEAN NOT NULL DEFAULT FALSE,
			no_mic BOOLEAN NOT NULL DEFAULT FALSE,
			creator_id TEXT,
			user_count INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			first_seen TIMESTAMP NOT NULL,
			last_activity TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			joined_at TIMESTAMP NOT NULL,
			left_at TIMESTAMP,
			duration BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			position INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS user_activity_log (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			room_id TEXT,
			changes TEXT,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_room_active ON sessions(room_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_joined ON sessions(user_id, joined_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_user_created ON user_activity_log(user_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
