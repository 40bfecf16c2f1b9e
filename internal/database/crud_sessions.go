// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roomscope/roomscope/internal/models"
)

// OpenSession inserts a new open session and bumps the user's cumulative
// session count. The reconciler guarantees no open session already exists
// for the (user, room) pair.
func (db *DB) OpenSession(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.IsActive = true

	ctx, cancel := db.opContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, room_id, joined_at, left_at, duration, is_active, position)
		VALUES (?, ?, ?, ?, NULL, 0, TRUE, ?)`,
		s.ID, s.UserID, s.RoomID, s.JoinedAt, s.Position)
	if err != nil {
		return fmt.Errorf("failed to open session for %s in %s: %w", s.UserID, s.RoomID, err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE users SET total_sessions = total_sessions + 1 WHERE user_id = ?`, s.UserID); err != nil {
		return fmt.Errorf("failed to bump session count for %s: %w", s.UserID, err)
	}
	return nil
}

// CloseSession finalizes one session. The caller has already applied the
// clamp rule via models.Session.Close, so left_at and duration arrive
// consistent. The user's cumulative duration advances by the final duration.
func (db *DB) CloseSession(ctx context.Context, s *models.Session) error {
	if s.LeftAt == nil {
		return fmt.Errorf("session %s has no left_at", s.ID)
	}

	ctx, cancel := db.opContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE sessions SET left_at = ?, duration = ?, is_active = FALSE
		WHERE id = ? AND is_active`,
		*s.LeftAt, s.Duration, s.ID)
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", s.ID, err)
	}

	// A second close of the same session matches zero rows and must not
	// double-count the duration.
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read close result for %s: %w", s.ID, err)
	}
	if affected == 0 {
		return nil
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE users SET total_duration = total_duration + ? WHERE user_id = ?`,
		s.Duration, s.UserID); err != nil {
		return fmt.Errorf("failed to add duration for %s: %w", s.UserID, err)
	}
	return nil
}

// CloseSessionsInRooms closes every open session in the given rooms, used
// when a sweep shows rooms gone from the platform. The clamp rule applies
// per row: a close time before joined_at yields a zero-duration close.
// Returns the number of sessions closed.
func (db *DB) CloseSessionsInRooms(ctx context.Context, roomIDs []string, leftAt time.Time) (int, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}

	ctx, cancel := db.opContext(ctx)
	defer cancel()

	placeholders := strings.Repeat("?,", len(roomIDs)-1) + "?"
	roomArgs := make([]any, 0, len(roomIDs))
	for _, id := range roomIDs {
		roomArgs = append(roomArgs, id)
	}

	// Credit cumulative user durations before flipping the rows, while the
	// affected sessions are still identifiable as open.
	//nolint:gosec // placeholders is built from "?" repetition, not input
	totalsQuery := fmt.Sprintf(`
		UPDATE users SET total_duration = total_duration + agg.d
		FROM (
			SELECT user_id,
			       SUM(CAST(GREATEST(0, date_diff('second', joined_at, CAST(? AS TIMESTAMP))) AS BIGINT)) AS d
			FROM sessions
			WHERE is_active AND room_id IN (%s)
			GROUP BY user_id
		) agg
		WHERE users.user_id = agg.user_id`, placeholders)
	totalsArgs := append([]any{leftAt}, roomArgs...)
	if _, err := db.conn.ExecContext(ctx, totalsQuery, totalsArgs...); err != nil {
		return 0, fmt.Errorf("failed to credit durations for deactivated rooms: %w", err)
	}

	args := append([]any{leftAt, leftAt}, roomArgs...)

	//nolint:gosec // placeholders is built from "?" repetition, not input
	query := fmt.Sprintf(`
		UPDATE sessions SET
			left_at = GREATEST(joined_at, CAST(? AS TIMESTAMP)),
			duration = CAST(GREATEST(0, date_diff('second', joined_at, CAST(? AS TIMESTAMP))) AS BIGINT),
			is_active = FALSE
		WHERE is_active AND room_id IN (%s)`, placeholders)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to close sessions in deactivated rooms: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cascade close result: %w", err)
	}
	return int(affected), nil
}

// GetOpenSessions returns every open session. Used to rebuild the in-memory
// open-session index at startup.
func (db *DB) GetOpenSessions(ctx context.Context) ([]models.Session, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, room_id, joined_at, left_at, duration, is_active, position
		FROM sessions WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions: %w", err)
	}
	defer closeQuietly(rows)
	return collectSessions(rows)
}

// GetOpenSessionsByRoom returns the open sessions for one room.
func (db *DB) GetOpenSessionsByRoom(ctx context.Context, roomID string) ([]models.Session, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, room_id, joined_at, left_at, duration, is_active, position
		FROM sessions WHERE is_active AND room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions for %s: %w", roomID, err)
	}
	defer closeQuietly(rows)
	return collectSessions(rows)
}

// GetUserSessions returns a user's session history, newest first, with the
// total count for pagination.
func (db *DB) GetUserSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, int, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions for %s: %w", userID, err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, room_id, joined_at, left_at, duration, is_active, position
		FROM sessions WHERE user_id = ?
		ORDER BY joined_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions for %s: %w", userID, err)
	}
	defer closeQuietly(rows)

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// CountOpenSessions returns the number of currently open sessions.
func (db *DB) CountOpenSessions(ctx context.Context) (int, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count open sessions: %w", err)
	}
	return n, nil
}

func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var leftAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.RoomID, &s.JoinedAt, &leftAt,
			&s.Duration, &s.IsActive, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if leftAt.Valid {
			t := leftAt.Time
			s.LeftAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}
