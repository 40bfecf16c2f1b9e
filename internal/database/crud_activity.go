// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/roomscope/roomscope/internal/models"
)

// InsertActivity appends one entry to the activity log. Entries are
// append-only; there is no update or delete path.
func (db *DB) InsertActivity(ctx context.Context, e *models.ActivityLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	var changes any
	if len(e.Changes) > 0 {
		encoded, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode activity changes: %w", err)
		}
		changes = string(encoded)
	}

	ctx, cancel := db.opContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_activity_log (id, user_id, type, room_id, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Type, nullIfEmpty(e.RoomID), changes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity for %s: %w", e.UserID, err)
	}
	return nil
}

// GetUserActivity returns a user's most recent activity entries, newest first.
func (db *DB) GetUserActivity(ctx context.Context, userID string, limit int) ([]models.ActivityLogEntry, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, type, room_id, changes, created_at
		FROM user_activity_log
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity for %s: %w", userID, err)
	}
	defer closeQuietly(rows)

	var entries []models.ActivityLogEntry
	for rows.Next() {
		var e models.ActivityLogEntry
		var roomID, changes sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &roomID, &changes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		e.RoomID = roomID.String
		if changes.Valid && changes.String != "" {
			if err := json.Unmarshal([]byte(changes.String), &e.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode activity changes: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity entries: %w", err)
	}
	return entries, nil
}

// nullIfEmpty maps "" to SQL NULL for optional text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
