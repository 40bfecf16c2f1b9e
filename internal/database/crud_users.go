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

	"github.com/roomscope/roomscope/internal/models"
)

// GetUser fetches one user by id. Returns (nil, nil) when the user has never
// been observed.
func (db *DB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `
		SELECT user_id, name, avatar, is_verified, followers, following, friends,
		       supporter_tier, first_seen, last_seen, total_sessions, total_duration
		FROM users WHERE user_id = ?`, userID)

	var u models.User
	var avatar sql.NullString
	err := row.Scan(&u.UserID, &u.Name, &avatar, &u.IsVerified, &u.Followers,
		&u.Following, &u.Friends, &u.SupporterTier, &u.FirstSeen, &u.LastSeen,
		&u.TotalSessions, &u.TotalDuration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	u.Avatar = avatar.String
	return &u, nil
}

// UpsertUser inserts or replaces the persisted profile for a user. The merge
// policy has already decided every field value; the store writes them as-is.
// Cumulative totals are managed by the session CRUD and are deliberately not
// touched by a profile upsert.
func (db *DB) UpsertUser(ctx context.Context, u *models.User) error {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (
			user_id, name, avatar, is_verified, followers, following, friends,
			supporter_tier, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			is_verified = EXCLUDED.is_verified,
			followers = EXCLUDED.followers,
			following = EXCLUDED.following,
			friends = EXCLUDED.friends,
			supporter_tier = EXCLUDED.supporter_tier,
			last_seen = EXCLUDED.last_seen`,
		u.UserID, u.Name, u.Avatar, u.IsVerified, u.Followers, u.Following,
		u.Friends, u.SupporterTier, u.FirstSeen, u.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.UserID, err)
	}
	return nil
}

// CountUsers returns the number of users ever observed.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
