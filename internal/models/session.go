// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one continuous (user, room) presence interval.
//
// Invariant: at most one open session (LeftAt == nil) exists per
// (UserID, RoomID) pair at any time. The reconciler enforces this; the store
// only ever sees opens and closes the reconciler computed.
//
// A session is closed exactly once. A later re-join of the same room creates
// a new Session row; closed sessions are never reopened.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
	RoomID string    `json:"room_id"`

	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`

	// Duration in seconds, computed at close. Zero while open.
	Duration int64 `json:"duration_seconds"`

	// IsActive is denormalized from LeftAt == nil as a fast-path filter
	// column. The store keeps the two in lockstep.
	IsActive bool `json:"is_active"`

	// Position is the user's slot in the room occupant list at join time.
	Position int `json:"position"`
}

// Close marks the session as ended at the given time. If the close time
// precedes the join time (clock skew, duplicate-close race) the session is
// clamped to zero duration rather than rejected.
//
// Returns true if clamping occurred.
func (s *Session) Close(leftAt time.Time) bool {
	clamped := false
	if leftAt.Before(s.JoinedAt) {
		leftAt = s.JoinedAt
		clamped = true
	}
	s.LeftAt = &leftAt
	s.Duration = int64(leftAt.Sub(s.JoinedAt).Seconds())
	s.IsActive = false
	return clamped
}
