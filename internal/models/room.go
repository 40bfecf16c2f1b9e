// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package models

import (
	"strings"
	"time"
)

// SkillLevel categorizes a room's advertised proficiency requirement.
type SkillLevel string

// Skill levels as used by the platform. AnyLevel is the catch-all the
// platform shows for rooms without a requirement.
const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillAnyLevel     SkillLevel = "any_level"
)

// ParseSkillLevel maps free-text skill labels from captures to a SkillLevel.
// Unknown or empty text maps to AnyLevel.
func ParseSkillLevel(s string) SkillLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner":
		return SkillBeginner
	case "intermediate", "upper intermediate":
		return SkillIntermediate
	case "advanced":
		return SkillAdvanced
	default:
		return SkillAnyLevel
	}
}

// UnlimitedCapacity marks a room without an occupant cap.
const UnlimitedCapacity = -1

// Room is the persisted state of a platform room.
type Room struct {
	RoomID    string     `json:"room_id"`
	Topic     string     `json:"topic"`
	Language  string     `json:"language"`
	Language2 string     `json:"language2,omitempty"`
	Level     SkillLevel `json:"level"`

	// MaxUsers is the occupant cap; UnlimitedCapacity (-1) means none.
	MaxUsers int `json:"max_users"`

	IsLocked bool `json:"is_locked"`
	NoMic    bool `json:"no_mic"`

	// CreatorID is a weak reference: the creator may never have been
	// observed present in the room.
	CreatorID string `json:"creator_id,omitempty"`

	UserCount    int       `json:"user_count"`
	IsActive     bool      `json:"is_active"`
	FirstSeen    time.Time `json:"first_seen"`
	LastActivity time.Time `json:"last_activity"`
}

// RoomSnapshot is the canonical output of the snapshot normalizer: one room
// as observed at a single point in time, with its present users.
type RoomSnapshot struct {
	Room    Room              `json:"room"`
	Present []UserObservation `json:"present"`

	// ObservedAt is when the capture was taken, not when it was processed.
	ObservedAt time.Time `json:"observed_at"`
}

// PresentIDs returns the set of user ids present in the snapshot.
func (s *RoomSnapshot) PresentIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Present))
	for _, u := range s.Present {
		ids[u.UserID] = struct{}{}
	}
	return ids
}
