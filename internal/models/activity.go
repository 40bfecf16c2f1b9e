// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity log entry types.
const (
	ActivityProfileUpdate = "profile_update"
	ActivityJoin          = "join"
	ActivityLeave         = "leave"
)

// FieldChange records one field-level difference detected by the profile
// merge policy: the previous value, the adopted value, and the numeric delta
// where the field is a counter.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
	Diff  int    `json:"diff,omitempty"`
}

// ActivityLogEntry is an append-only audit record of a profile change or a
// join/leave event. Entries are never mutated after insert.
type ActivityLogEntry struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`

	// Type is one of ActivityProfileUpdate, ActivityJoin, ActivityLeave.
	Type string `json:"type"`

	// RoomID is set for join/leave entries, empty for profile updates.
	RoomID string `json:"room_id,omitempty"`

	// Changes holds the per-field diff for profile updates.
	Changes []FieldChange `json:"changes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
