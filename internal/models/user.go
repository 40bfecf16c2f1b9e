// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package models defines the data structures shared across Roomscope:
// observed users and rooms, persisted sessions, activity log entries, and
// API response shapes.
package models

import (
	"strings"
	"time"
	"unicode"
)

// User is the persisted profile of a platform user.
//
// Users are never deleted; a user that stops appearing in snapshots is simply
// never refreshed again. All mutation goes through the merge policy so that a
// bad capture cannot overwrite previously good values.
type User struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	IsVerified bool   `json:"is_verified"`

	// Platform-reported social counters. Monotonic in practice but noisy:
	// a capture failure frequently reports them as zero.
	Followers int `json:"followers"`
	Following int `json:"following"`
	Friends   int `json:"friends"`

	// SupporterTier is the paid-supporter level, clamped to [0, 10].
	SupporterTier int `json:"supporter_tier"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Derived cumulative figures, maintained by the store on session close.
	TotalSessions int   `json:"total_sessions"`
	TotalDuration int64 `json:"total_duration_seconds"`
}

// UserObservation is one sighting of a user inside a room snapshot, before
// any merge with stored state. Counter fields carry whatever the capture
// reported, including artifact zeros.
type UserObservation struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	IsVerified    bool   `json:"is_verified"`
	Followers     int    `json:"followers"`
	Following     int    `json:"following"`
	Friends       int    `json:"friends"`
	SupporterTier int    `json:"supporter_tier"`

	// Position is the user's slot in the room's occupant list at capture
	// time, starting at 0. Recorded on the session at join.
	Position int `json:"position"`
}

// SlugifyName derives a fallback user id from a display name for entries the
// platform serves without a stable id. Lowercased, spaces and punctuation
// collapsed to single hyphens.
//
// Known fragility: the slug is not stable across display-name changes, so a
// renamed user without a platform id shows up as a new user. Inherited from
// the upstream data source and documented rather than papered over.
func SlugifyName(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
