// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package models

import (
	"testing"
	"time"
)

func TestSlugifyName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"John Doe", "john-doe"},
		{"  spaced  out  ", "spaced-out"},
		{"ALL_CAPS", "all-caps"},
		{"émilie", "émilie"},
		{"user!!!42", "user-42"},
		{"trailing punctuation!", "trailing-punctuation"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := SlugifyName(tt.input); got != tt.want {
			t.Errorf("SlugifyName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseSkillLevel(t *testing.T) {
	tests := []struct {
		input string
		want  SkillLevel
	}{
		{"Beginner", SkillBeginner},
		{"intermediate", SkillIntermediate},
		{"Upper Intermediate", SkillIntermediate},
		{"ADVANCED", SkillAdvanced},
		{"Any Level", SkillAnyLevel},
		{"", SkillAnyLevel},
		{"fluent", SkillAnyLevel},
	}
	for _, tt := range tests {
		if got := ParseSkillLevel(tt.input); got != tt.want {
			t.Errorf("ParseSkillLevel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSessionClose(t *testing.T) {
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{UserID: "u1", RoomID: "r1", JoinedAt: joined, IsActive: true}

	left := joined.Add(90 * time.Second)
	if clamped := s.Close(left); clamped {
		t.Error("unexpected clamp for normal close")
	}
	if s.IsActive {
		t.Error("session still marked active after close")
	}
	if s.Duration != 90 {
		t.Errorf("duration = %d, want 90", s.Duration)
	}
	if s.LeftAt == nil || !s.LeftAt.Equal(left) {
		t.Errorf("left_at = %v, want %v", s.LeftAt, left)
	}
}

func TestSessionCloseClampsClockSkew(t *testing.T) {
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{UserID: "u1", RoomID: "r1", JoinedAt: joined, IsActive: true}

	// Close time before join time must clamp to zero duration, never go negative.
	if clamped := s.Close(joined.Add(-time.Minute)); !clamped {
		t.Error("expected clamp for close before join")
	}
	if s.Duration != 0 {
		t.Errorf("duration = %d, want 0", s.Duration)
	}
	if s.LeftAt == nil || !s.LeftAt.Equal(joined) {
		t.Errorf("left_at = %v, want join time %v", s.LeftAt, joined)
	}
}

func TestPresentIDs(t *testing.T) {
	snap := RoomSnapshot{
		Present: []UserObservation{{UserID: "a"}, {UserID: "b"}, {UserID: "a"}},
	}
	ids := snap.PresentIDs()
	if len(ids) != 2 {
		t.Errorf("expected 2 distinct ids, got %d", len(ids))
	}
	if _, ok := ids["a"]; !ok {
		t.Error("missing id a")
	}
	if _, ok := ids["b"]; !ok {
		t.Error("missing id b")
	}
}
