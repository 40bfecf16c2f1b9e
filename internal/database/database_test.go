// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/models"
)

// testDBSemaphore serializes in-memory database creation. Concurrent DuckDB
// CGO initialization can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:         ":memory:",
		MaxMemory:    "512MB",
		Threads:      2,
		QueryTimeout: 30 * time.Second,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

func testUser(id string, seen time.Time) *models.User {
	return &models.User{
		UserID:        id,
		Name:          "Test " + id,
		Avatar:        "https://cdn.example.com/" + id + ".png",
		IsVerified:    true,
		Followers:     120,
		Following:     45,
		Friends:       30,
		SupporterTier: 2,
		FirstSeen:     seen,
		LastSeen:      seen,
	}
}

func testRoom(id string, seen time.Time) *models.Room {
	return &models.Room{
		RoomID:       id,
		Topic:        "Evening practice",
		Language:     "English",
		Level:        models.SkillIntermediate,
		MaxUsers:     10,
		UserCount:    3,
		IsActive:     true,
		FirstSeen:    seen,
		LastActivity: seen,
	}
}

func TestUserRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	got, err := db.GetUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUser on empty database: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for unknown user, got %+v", got)
	}

	u := testUser("u1", now)
	if err := db.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err = db.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil {
		t.Fatal("Expected stored user, got nil")
	}
	if got.Name != u.Name || got.Followers != 120 || got.SupporterTier != 2 {
		t.Errorf("Stored user mismatch: %+v", got)
	}
	if !got.FirstSeen.Equal(now) {
		t.Errorf("first_seen = %v, want %v", got.FirstSeen, now)
	}

	// A second upsert refreshes profile fields but never first_seen or the
	// cumulative totals.
	later := now.Add(5 * time.Minute)
	u2 := testUser("u1", later)
	u2.Followers = 200
	if err := db.UpsertUser(ctx, u2); err != nil {
		t.Fatalf("UpsertUser (update): %v", err)
	}
	got, err = db.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser after update: %v", err)
	}
	if got.Followers != 200 {
		t.Errorf("followers = %d, want 200", got.Followers)
	}
	if !got.FirstSeen.Equal(now) {
		t.Errorf("first_seen changed on update: %v", got.FirstSeen)
	}
	if !got.LastSeen.Equal(later) {
		t.Errorf("last_seen = %v, want %v", got.LastSeen, later)
	}

	n, err := db.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("CountUsers = %d, want 1", n)
	}
}

func TestRoomUpsertAndDeactivate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := db.UpsertRoom(ctx, testRoom(id, now)); err != nil {
			t.Fatalf("UpsertRoom(%s): %v", id, err)
		}
	}

	// Empty observed set means the sweep produced nothing usable; nothing
	// may be deactivated.
	stale, err := db.MarkRoomsInactive(ctx, nil)
	if err != nil {
		t.Fatalf("MarkRoomsInactive(nil): %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("Empty observed set deactivated rooms: %v", stale)
	}

	stale, err = db.MarkRoomsInactive(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("MarkRoomsInactive: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("Expected 2 stale rooms, got %v", stale)
	}

	r, err := db.GetRoom(ctx, "r2")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if r.IsActive {
		t.Error("r2 still active after deactivation")
	}

	// A deactivated room reappearing in a snapshot becomes active again and
	// keeps its original first_seen.
	reborn := testRoom("r2", now.Add(time.Hour))
	if err := db.UpsertRoom(ctx, reborn); err != nil {
		t.Fatalf("UpsertRoom (reactivate): %v", err)
	}
	r, err = db.GetRoom(ctx, "r2")
	if err != nil {
		t.Fatalf("GetRoom after reactivation: %v", err)
	}
	if !r.IsActive {
		t.Error("r2 not reactivated by upsert")
	}
	if !r.FirstSeen.Equal(now) {
		t.Errorf("first_seen changed on reactivation: %v", r.FirstSeen)
	}

	rooms, total, err := db.GetActiveRooms(ctx, 10, 0)
	if err != nil {
		t.Fatalf("GetActiveRooms: %v", err)
	}
	if total != 2 || len(rooms) != 2 {
		t.Errorf("GetActiveRooms = %d rooms (total %d), want 2", len(rooms), total)
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := db.UpsertUser(ctx, testUser("u1", now)); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := db.UpsertRoom(ctx, testRoom("r1", now)); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}

	s := &models.Session{UserID: "u1", RoomID: "r1", JoinedAt: now, Position: 2}
	if err := db.OpenSession(ctx, s); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if s.ID == uuid.Nil {
		t.Fatal("OpenSession did not assign an id")
	}

	open, err := db.GetOpenSessionsByRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("GetOpenSessionsByRoom: %v", err)
	}
	if len(open) != 1 || open[0].UserID != "u1" || open[0].Position != 2 {
		t.Fatalf("Unexpected open sessions: %+v", open)
	}

	s.Close(now.Add(90 * time.Second))
	if err := db.CloseSession(ctx, s); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	// Closing again is a no-op and must not double-count duration.
	if err := db.CloseSession(ctx, s); err != nil {
		t.Fatalf("CloseSession (repeat): %v", err)
	}

	u, err := db.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.TotalSessions != 1 {
		t.Errorf("total_sessions = %d, want 1", u.TotalSessions)
	}
	if u.TotalDuration != 90 {
		t.Errorf("total_duration = %d, want 90", u.TotalDuration)
	}

	n, err := db.CountOpenSessions(ctx)
	if err != nil {
		t.Fatalf("CountOpenSessions: %v", err)
	}
	if n != 0 {
		t.Errorf("CountOpenSessions = %d, want 0", n)
	}

	history, total, err := db.GetUserSessions(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("GetUserSessions: %v", err)
	}
	if total != 1 || len(history) != 1 {
		t.Fatalf("GetUserSessions = %d (total %d), want 1", len(history), total)
	}
	if history[0].LeftAt == nil || history[0].Duration != 90 || history[0].IsActive {
		t.Errorf("Closed session not persisted correctly: %+v", history[0])
	}
}

func TestCloseSessionsInRoomsClampsAndCredits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := db.UpsertUser(ctx, testUser("u1", now)); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := db.UpsertUser(ctx, testUser("u2", now)); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	// u1 joined in the past; u2's join timestamp is ahead of the close time,
	// the skew case the clamp rule exists for.
	s1 := &models.Session{UserID: "u1", RoomID: "r1", JoinedAt: now.Add(-2 * time.Minute)}
	s2 := &models.Session{UserID: "u2", RoomID: "r1", JoinedAt: now.Add(30 * time.Second)}
	s3 := &models.Session{UserID: "u1", RoomID: "r2", JoinedAt: now.Add(-time.Minute)}
	for _, s := range []*models.Session{s1, s2, s3} {
		if err := db.OpenSession(ctx, s); err != nil {
			t.Fatalf("OpenSession: %v", err)
		}
	}

	closed, err := db.CloseSessionsInRooms(ctx, []string{"r1"}, now)
	if err != nil {
		t.Fatalf("CloseSessionsInRooms: %v", err)
	}
	if closed != 2 {
		t.Fatalf("Closed %d sessions, want 2", closed)
	}

	// r2's session is untouched.
	open, err := db.GetOpenSessions(ctx)
	if err != nil {
		t.Fatalf("GetOpenSessions: %v", err)
	}
	if len(open) != 1 || open[0].RoomID != "r2" {
		t.Fatalf("Unexpected surviving sessions: %+v", open)
	}

	history, _, err := db.GetUserSessions(ctx, "u2", 10, 0)
	if err != nil {
		t.Fatalf("GetUserSessions(u2): %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 session for u2, got %d", len(history))
	}
	if history[0].Duration != 0 {
		t.Errorf("Skewed session duration = %d, want 0 (clamped)", history[0].Duration)
	}
	if history[0].LeftAt == nil || history[0].LeftAt.Before(history[0].JoinedAt) {
		t.Errorf("Clamped left_at precedes joined_at: %+v", history[0])
	}

	u1, err := db.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser(u1): %v", err)
	}
	if u1.TotalDuration != 120 {
		t.Errorf("u1 total_duration = %d, want 120", u1.TotalDuration)
	}
	u2, err := db.GetUser(ctx, "u2")
	if err != nil {
		t.Fatalf("GetUser(u2): %v", err)
	}
	if u2.TotalDuration != 0 {
		t.Errorf("u2 total_duration = %d, want 0", u2.TotalDuration)
	}
}

func TestActivityLog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	entries := []*models.ActivityLogEntry{
		{
			UserID:    "u1",
			Type:      models.ActivityProfileUpdate,
			Changes:   []models.FieldChange{{Field: "followers", Old: 100, New: 150, Diff: 50}},
			CreatedAt: now,
		},
		{
			UserID:    "u1",
			Type:      models.ActivityJoin,
			RoomID:    "r1",
			CreatedAt: now.Add(time.Minute),
		},
	}
	for _, e := range entries {
		if err := db.InsertActivity(ctx, e); err != nil {
			t.Fatalf("InsertActivity: %v", err)
		}
	}

	got, err := db.GetUserActivity(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetUserActivity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	// Newest first.
	if got[0].Type != models.ActivityJoin || got[0].RoomID != "r1" {
		t.Errorf("Unexpected newest entry: %+v", got[0])
	}
	if got[1].Type != models.ActivityProfileUpdate {
		t.Errorf("Unexpected oldest entry: %+v", got[1])
	}
	if len(got[1].Changes) != 1 || got[1].Changes[0].Field != "followers" || got[1].Changes[0].Diff != 50 {
		t.Errorf("Changes did not round-trip: %+v", got[1].Changes)
	}
}

func TestGetStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := db.UpsertUser(ctx, testUser("u1", now)); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := db.UpsertRoom(ctx, testRoom("r1", now)); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}
	spanish := testRoom("r2", now)
	spanish.Language = "Spanish"
	if err := db.UpsertRoom(ctx, spanish); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}

	closedSession := &models.Session{UserID: "u1", RoomID: "r1", JoinedAt: now.Add(-10 * time.Minute)}
	if err := db.OpenSession(ctx, closedSession); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	closedSession.Close(now)
	if err := db.CloseSession(ctx, closedSession); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	openSession := &models.Session{UserID: "u1", RoomID: "r2", JoinedAt: now}
	if err := db.OpenSession(ctx, openSession); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.ActiveRooms != 2 || stats.TotalRooms != 2 {
		t.Errorf("Room counts = %d/%d, want 2/2", stats.ActiveRooms, stats.TotalRooms)
	}
	if stats.ActiveSessions != 1 || stats.TotalSessions != 2 {
		t.Errorf("Session counts = %d/%d, want 1/2", stats.ActiveSessions, stats.TotalSessions)
	}
	if stats.TotalUsers != 1 {
		t.Errorf("TotalUsers = %d, want 1", stats.TotalUsers)
	}
	if stats.TotalPresenceSeconds != 600 {
		t.Errorf("TotalPresenceSeconds = %d, want 600", stats.TotalPresenceSeconds)
	}
	if len(stats.TopRooms) != 1 || stats.TopRooms[0].RoomID != "r1" || stats.TopRooms[0].TotalSeconds != 600 {
		t.Errorf("Unexpected top rooms: %+v", stats.TopRooms)
	}
	if len(stats.Languages) != 2 {
		t.Errorf("Unexpected language distribution: %+v", stats.Languages)
	}
}

func TestExportTo(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUser(ctx, testUser("u1", time.Now().UTC())); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "backup-it's")
	if err := db.ExportTo(ctx, dir); err != nil {
		t.Fatalf("ExportTo: %v", err)
	}

	// EXPORT DATABASE writes schema files plus one data file per table.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var hasSchema, hasData bool
	for _, e := range entries {
		switch {
		case e.Name() == "schema.sql":
			hasSchema = true
		case strings.HasSuffix(e.Name(), ".parquet"):
			hasData = true
		}
	}
	if !hasSchema || !hasData {
		t.Errorf("export incomplete: schema=%v data=%v entries=%v", hasSchema, hasData, entries)
	}
}
