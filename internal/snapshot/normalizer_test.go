// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package snapshot

import (
	"testing"
	"time"

	"github.com/roomscope/roomscope/internal/models"
)

var testObservedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeArrayPayload(t *testing.T) {
	raw := []byte(`[
		{
			"id": "room-1",
			"userId": "creator-1",
			"topic": "English practice",
			"language": "English",
			"level": "Intermediate",
			"maxPeople": 8,
			"settings": {"noMic": false, "isLocked": true},
			"clients": [
				{"id": "u1", "name": "Alice", "isVerified": true, "followers": 120, "following": 30, "friends": 12, "supporter": 2},
				{"id": "u2", "name": "Bob", "followers": "1.2k"}
			]
		}
	]`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if res.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", res.Skipped)
	}
	if len(res.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(res.Rooms))
	}

	room := res.Rooms[0]
	if room.Room.RoomID != "room-1" {
		t.Errorf("room_id = %s", room.Room.RoomID)
	}
	if room.Room.Level != models.SkillIntermediate {
		t.Errorf("level = %s, want intermediate", room.Room.Level)
	}
	if !room.Room.IsLocked || room.Room.NoMic {
		t.Error("settings not carried through")
	}
	if room.Room.MaxUsers != 8 {
		t.Errorf("max_users = %d, want 8", room.Room.MaxUsers)
	}
	if room.Room.CreatorID != "creator-1" {
		t.Errorf("creator_id = %s", room.Room.CreatorID)
	}
	if len(room.Present) != 2 {
		t.Fatalf("present = %d, want 2", len(room.Present))
	}
	if room.Present[0].Followers != 120 || room.Present[0].SupporterTier != 2 {
		t.Errorf("first user counters wrong: %+v", room.Present[0])
	}
	if room.Present[1].Followers != 1200 {
		t.Errorf("abbreviated follower text = %d, want 1200", room.Present[1].Followers)
	}
	if room.Present[1].Position != 1 {
		t.Errorf("position = %d, want 1", room.Present[1].Position)
	}
	if !room.ObservedAt.Equal(testObservedAt) {
		t.Errorf("observed_at = %v", room.ObservedAt)
	}
}

func TestNormalizeKeyedPayload(t *testing.T) {
	raw := []byte(`{
		"room-a": {"id": "room-a", "topic": "Spanish", "language": "Spanish", "clients": [{"id": "u1", "name": "Ana"}]},
		"room-b": {"id": "room-b", "topic": "French", "language": "French", "clients": []}
	}`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Rooms) != 2 {
		t.Fatalf("rooms = %d, want 2", len(res.Rooms))
	}
	// Document order is preserved.
	if res.Rooms[0].Room.RoomID != "room-a" || res.Rooms[1].Room.RoomID != "room-b" {
		t.Errorf("order not preserved: %s, %s", res.Rooms[0].Room.RoomID, res.Rooms[1].Room.RoomID)
	}
}

func TestNormalizeSkipsMalformedEntries(t *testing.T) {
	raw := []byte(`[
		{"id": "good-room", "topic": "ok", "clients": []},
		"not an object",
		{"topic": "no id"},
		42
	]`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Rooms) != 1 {
		t.Errorf("rooms = %d, want 1", len(res.Rooms))
	}
	if res.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", res.Skipped)
	}
}

func TestNormalizeDeduplicatesLastWriteWins(t *testing.T) {
	raw := []byte(`[
		{"id": "r1", "topic": "first topic", "language": "English", "maxPeople": 5,
		 "clients": [{"id": "u1", "name": "Alice"}]},
		{"id": "r1", "topic": "second topic",
		 "clients": [{"id": "u2", "name": "Bob"}, {"id": "u3", "name": "Cara"}]}
	]`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(res.Rooms))
	}

	room := res.Rooms[0]
	if room.Room.Topic != "second topic" {
		t.Errorf("topic = %q, want later entry's topic", room.Room.Topic)
	}
	// Later entry omitted language and capacity; earlier values survive.
	if room.Room.Language != "English" {
		t.Errorf("language = %q, want English", room.Room.Language)
	}
	if room.Room.MaxUsers != 5 {
		t.Errorf("max_users = %d, want 5", room.Room.MaxUsers)
	}
	if len(room.Present) != 2 || room.Present[0].UserID != "u2" {
		t.Errorf("present list not replaced by later entry: %+v", room.Present)
	}
}

func TestNormalizeDeduplicatesUsersFirstWins(t *testing.T) {
	// u1 appears twice; the two id-less clients named "Guest" collapse onto
	// the same slug fallback id.
	raw := []byte(`[
		{"id": "r1", "topic": "duplicates",
		 "clients": [
			{"id": "u1", "name": "Alice", "followers": 50},
			{"name": "Guest", "followers": 7},
			{"id": "u1", "name": "Alice", "followers": 0},
			{"name": "Guest", "followers": 9}
		 ]}
	]`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(res.Rooms))
	}

	room := res.Rooms[0]
	if len(room.Present) != 2 {
		t.Fatalf("present = %d, want 2 unique users: %+v", len(room.Present), room.Present)
	}
	if room.Room.UserCount != 2 {
		t.Errorf("user_count = %d, want 2", room.Room.UserCount)
	}
	if room.Present[0].UserID != "u1" || room.Present[0].Followers != 50 || room.Present[0].Position != 0 {
		t.Errorf("first occurrence of u1 not kept: %+v", room.Present[0])
	}
	if room.Present[1].UserID != "guest" || room.Present[1].Followers != 7 || room.Present[1].Position != 1 {
		t.Errorf("first occurrence of guest not kept: %+v", room.Present[1])
	}
}

func TestNormalizeFragmentDeduplicatesUsers(t *testing.T) {
	raw := []byte(`{"fragments": [
		{"roomId": "r2", "topic": "markup",
		 "users": [
			{"username": "Hans Gruber", "followersText": "100"},
			{"username": "hans gruber", "followersText": "999"}
		 ]}
	]}`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(res.Rooms))
	}

	room := res.Rooms[0]
	if len(room.Present) != 1 || room.Room.UserCount != 1 {
		t.Fatalf("present = %d user_count = %d, want 1/1", len(room.Present), room.Room.UserCount)
	}
	if room.Present[0].UserID != "hans-gruber" || room.Present[0].Followers != 100 {
		t.Errorf("first occurrence not kept: %+v", room.Present[0])
	}
}

func TestNormalizeFragmentEnvelope(t *testing.T) {
	raw := []byte(`{"fragments": [
		{"roomId": "r9", "language": "German", "levelText": "Beginner", "topic": "Small talk",
		 "users": [{"username": "Hans Gruber", "followersText": "2,340"}, {"username": ""}]},
		{"language": "no room id"}
	]}`)

	res, err := Normalize(raw, testObservedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if len(res.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(res.Rooms))
	}

	room := res.Rooms[0]
	if room.Room.Level != models.SkillBeginner {
		t.Errorf("level = %s", room.Room.Level)
	}
	if len(room.Present) != 1 {
		t.Fatalf("present = %d, want 1 (empty username dropped)", len(room.Present))
	}
	if room.Present[0].UserID != "hans-gruber" {
		t.Errorf("slug fallback id = %s, want hans-gruber", room.Present[0].UserID)
	}
	if room.Present[0].Followers != 2340 {
		t.Errorf("followers = %d, want 2340", room.Present[0].Followers)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "plain text", "123"} {
		if _, err := Normalize([]byte(raw), testObservedAt); err == nil {
			t.Errorf("expected error for payload %q", raw)
		}
	}
}

func TestCoerceIntVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`42`, 42},
		{`"42"`, 42},
		{`"1.2k"`, 1200},
		{`"3m"`, 3000000},
		{`"1,234"`, 1234},
		{`"garbage"`, 0},
		{`null`, 0},
		{`true`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		if got := coerceInt([]byte(tt.raw)); got != tt.want {
			t.Errorf("coerceInt(%s) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
