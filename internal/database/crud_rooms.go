// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roomscope/roomscope/internal/models"
)

// UpsertRoom inserts or updates room state from a snapshot. last_activity
// and occupancy always refresh; first_seen is set on insert and never
// changed; a mentioned room is active by definition.
func (db *DB) UpsertRoom(ctx context.Context, r *models.Room) error {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO rooms (
			room_id, topic, language, language2, level, max_users, is_locked,
			no_mic, creator_id, user_count, is_active, first_seen, last_activity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (room_id) DO UPDATE SET
			topic = EXCLUDED.topic,
			language = EXCLUDED.language,
			language2 = EXCLUDED.language2,
			level = EXCLUDED.level,
			max_users = EXCLUDED.max_users,
			is_locked = EXCLUDED.is_locked,
			no_mic = EXCLUDED.no_mic,
			creator_id = EXCLUDED.creator_id,
			user_count = EXCLUDED.user_count,
			is_active = TRUE,
			last_activity = EXCLUDED.last_activity`,
		r.RoomID, r.Topic, r.Language, r.Language2, string(r.Level), r.MaxUsers,
		r.IsLocked, r.NoMic, r.CreatorID, r.UserCount, r.FirstSeen, r.LastActivity)
	if err != nil {
		return fmt.Errorf("failed to upsert room %s: %w", r.RoomID, err)
	}
	return nil
}

// GetRoom fetches one room by id. Returns (nil, nil) when unknown.
func (db *DB) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `
		SELECT room_id, topic, language, language2, level, max_users, is_locked,
		       no_mic, creator_id, user_count, is_active, first_seen, last_activity
		FROM rooms WHERE room_id = ?`, roomID)

	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}
	return r, nil
}

// MarkRoomsInactive flips is_active=false for every active room not in
// observedIDs and returns the ids of rooms deactivated, so callers can
// cascade session closure and invalidate caches.
//
// An empty observedIDs set means "no sweep data" and is a no-op: a failed or
// partial scrape must never deactivate the whole world.
func (db *DB) MarkRoomsInactive(ctx context.Context, observedIDs []string) ([]string, error) {
	if len(observedIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := db.opContext(ctx)
	defer cancel()

	placeholders := strings.Repeat("?,", len(observedIDs)-1) + "?"
	args := make([]any, 0, len(observedIDs))
	for _, id := range observedIDs {
		args = append(args, id)
	}

	//nolint:gosec // placeholders is built from "?" repetition, not input
	query := fmt.Sprintf(`SELECT room_id FROM rooms WHERE is_active AND room_id NOT IN (%s)`, placeholders)
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale rooms: %w", err)
	}
	defer closeQuietly(rows)

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale room id: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale rooms: %w", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	stalePlaceholders := strings.Repeat("?,", len(stale)-1) + "?"
	staleArgs := make([]any, 0, len(stale))
	for _, id := range stale {
		staleArgs = append(staleArgs, id)
	}
	//nolint:gosec // placeholders is built from "?" repetition, not input
	update := fmt.Sprintf(`UPDATE rooms SET is_active = FALSE WHERE room_id IN (%s)`, stalePlaceholders)
	if _, err := db.conn.ExecContext(ctx, update, staleArgs...); err != nil {
		return nil, fmt.Errorf("failed to deactivate rooms: %w", err)
	}
	return stale, nil
}

// GetActiveRooms returns currently active rooms ordered by occupancy, with
// the total count for pagination.
func (db *DB) GetActiveRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count active rooms: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT room_id, topic, language, language2, level, max_users, is_locked,
		       no_mic, creator_id, user_count, is_active, first_seen, last_activity
		FROM rooms WHERE is_active
		ORDER BY user_count DESC, last_activity DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query active rooms: %w", err)
	}
	defer closeQuietly(rows)

	var result []models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan room: %w", err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate active rooms: %w", err)
	}
	return result, total, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(s rowScanner) (*models.Room, error) {
	var r models.Room
	var topic, language, language2, creatorID sql.NullString
	var level string
	var firstSeen, lastActivity time.Time

	err := s.Scan(&r.RoomID, &topic, &language, &language2, &level, &r.MaxUsers,
		&r.IsLocked, &r.NoMic, &creatorID, &r.UserCount, &r.IsActive,
		&firstSeen, &lastActivity)
	if err != nil {
		return nil, err
	}
	r.Topic = topic.String
	r.Language = language.String
	r.Language2 = language2.String
	r.CreatorID = creatorID.String
	r.Level = models.SkillLevel(level)
	r.FirstSeen = firstSeen
	r.LastActivity = lastActivity
	return &r, nil
}
