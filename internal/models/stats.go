// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package models

import "time"

// Stats holds the aggregate figures served by /api/v1/stats.
type Stats struct {
	ActiveRooms    int `json:"active_rooms"`
	ActiveSessions int `json:"active_sessions"`
	TotalRooms     int `json:"total_rooms"`
	TotalUsers     int `json:"total_users"`
	TotalSessions  int `json:"total_sessions"`

	// TotalPresenceSeconds is the sum of all closed-session durations.
	TotalPresenceSeconds int64 `json:"total_presence_seconds"`

	TopRooms  []RoomStats     `json:"top_rooms,omitempty"`
	Languages []LanguageStats `json:"languages,omitempty"`
}

// RoomStats ranks a room by cumulative session time.
type RoomStats struct {
	RoomID       string `json:"room_id"`
	Topic        string `json:"topic"`
	Language     string `json:"language"`
	Sessions     int    `json:"sessions"`
	TotalSeconds int64  `json:"total_seconds"`
}

// LanguageStats is the distribution of rooms per primary language.
type LanguageStats struct {
	Language string `json:"language"`
	Rooms    int    `json:"rooms"`
}

// HealthStatus is the payload of the health endpoints.
type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	LastSweep time.Time `json:"last_sweep,omitempty"`
	Version   string    `json:"version,omitempty"`
}
