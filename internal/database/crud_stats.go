// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package database

import (
	"context"
	"fmt"

	"github.com/roomscope/roomscope/internal/models"
)

const topRoomsLimit = 10

// GetStats computes the aggregate figures for /api/v1/stats in a
// handful of queries. Figures are point-in-time and may be slightly
// stale relative to an in-flight sweep.
func (db *DB) GetStats(ctx context.Context) (*models.Stats, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	stats := &models.Stats{}

	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM rooms WHERE is_active),
			(SELECT COUNT(*) FROM sessions WHERE is_active),
			(SELECT COUNT(*) FROM rooms),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COALESCE(SUM(date_diff('second', joined_at, left_at)), 0)
			 FROM sessions WHERE NOT is_active)`).Scan(
		&stats.ActiveRooms, &stats.ActiveSessions,
		&stats.TotalRooms, &stats.TotalUsers, &stats.TotalSessions,
		&stats.TotalPresenceSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate stats: %w", err)
	}

	if stats.TopRooms, err = db.topRooms(ctx); err != nil {
		return nil, err
	}
	if stats.Languages, err = db.languageDistribution(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// topRooms ranks rooms by cumulative closed-session time.
func (db *DB) topRooms(ctx context.Context) ([]models.RoomStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.room_id, COALESCE(r.topic, ''), COALESCE(r.language, ''),
		       COUNT(*), COALESCE(SUM(date_diff('second', s.joined_at, s.left_at)), 0)
		FROM sessions s
		LEFT JOIN rooms r ON r.room_id = s.room_id
		WHERE NOT s.is_active
		GROUP BY s.room_id, r.topic, r.language
		ORDER BY 5 DESC
		LIMIT ?`, topRoomsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top rooms: %w", err)
	}
	defer closeQuietly(rows)

	var top []models.RoomStats
	for rows.Next() {
		var rs models.RoomStats
		if err := rows.Scan(&rs.RoomID, &rs.Topic, &rs.Language, &rs.Sessions, &rs.TotalSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan room stats: %w", err)
		}
		top = append(top, rs)
	}
	return top, rows.Err()
}

// languageDistribution counts active rooms per primary language.
func (db *DB) languageDistribution(ctx context.Context) ([]models.LanguageStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT language, COUNT(*)
		FROM rooms
		WHERE is_active AND language IS NOT NULL AND language != ''
		GROUP BY language
		ORDER BY 2 DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query language distribution: %w", err)
	}
	defer closeQuietly(rows)

	var langs []models.LanguageStats
	for rows.Next() {
		var ls models.LanguageStats
		if err := rows.Scan(&ls.Language, &ls.Rooms); err != nil {
			return nil, fmt.Errorf("failed to scan language stats: %w", err)
		}
		langs = append(langs, ls)
	}
	return langs, rows.Err()
}
