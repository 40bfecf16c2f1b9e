// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package snapshot normalizes raw platform captures into canonical
// RoomSnapshot values.
//
// The platform has served room data in three shapes over time: a JSON array
// of room objects, a JSON object keyed by room id, and a pre-parsed
// DOM-fragment envelope from the markup-scraping fallback. Normalize accepts
// all three behind one entry point and is a pure function: no I/O, no clock
// reads beyond the caller-supplied observation time.
//
// Malformed individual entries are skipped and counted, never fatal.
// Duplicate room ids within one payload are merged last-write-wins in
// document order.
package snapshot

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/roomscope/roomscope/internal/models"
)

// Result is the outcome of normalizing one raw payload.
type Result struct {
	Rooms []models.RoomSnapshot

	// Skipped counts entries that failed to decode or carried no usable
	// identity. Surfaced as a metric by the driver.
	Skipped int
}

// Normalize converts one raw capture into canonical room snapshots.
// An empty or whitespace-only payload returns an error; anything that parses
// as one of the known shapes succeeds, possibly with every entry skipped.
func Normalize(raw []byte, observedAt time.Time) (*Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var entries []json.RawMessage
	var err error

	switch trimmed[0] {
	case '[':
		entries, err = splitArray(trimmed)
		if err != nil {
			return nil, fmt.Errorf("array payload: %w", err)
		}
	case '{':
		if frags, ok := fragmentEnvelope(trimmed); ok {
			return normalizeFragments(frags, observedAt), nil
		}
		entries, err = splitKeyedMap(trimmed)
		if err != nil {
			return nil, fmt.Errorf("keyed payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unrecognized payload shape")
	}

	res := &Result{}
	byID := make(map[string]int) // room_id -> index into res.Rooms
	for _, entry := range entries {
		snap, ok := decodeRoomEntry(entry, observedAt)
		if !ok {
			res.Skipped++
			continue
		}
		if i, seen := byID[snap.Room.RoomID]; seen {
			res.Rooms[i] = mergeSnapshots(res.Rooms[i], snap)
			continue
		}
		byID[snap.Room.RoomID] = len(res.Rooms)
		res.Rooms = append(res.Rooms, snap)
	}
	return res, nil
}

// splitArray splits a JSON array payload into its raw elements.
func splitArray(raw []byte) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// splitKeyedMap splits a JSON object payload keyed by room id into its raw
// values, preserving document order. Document order matters because
// duplicate-room merging is last-write-wins; Go map iteration would
// scramble it.
func splitKeyedMap(raw []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	// Opening brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	for dec.More() {
		// Key: the room id, which also appears inside the value.
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, value)
	}
	return entries, nil
}

// fragmentEnvelope reports whether the payload is the DOM-fragment envelope
// and returns its fragments when it is.
func fragmentEnvelope(raw []byte) ([]json.RawMessage, bool) {
	var env struct {
		Fragments []json.RawMessage `json:"fragments"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Fragments == nil {
		return nil, false
	}
	return env.Fragments, true
}

// decodeRoomEntry decodes one API-shape room entry. Returns ok=false for
// entries that fail to decode or lack a room id.
func decodeRoomEntry(entry json.RawMessage, observedAt time.Time) (models.RoomSnapshot, bool) {
	var r rawRoom
	if err := json.Unmarshal(entry, &r); err != nil {
		return models.RoomSnapshot{}, false
	}
	if r.ID == "" {
		return models.RoomSnapshot{}, false
	}

	maxUsers := coerceInt(r.MaxPeople)
	if maxUsers <= 0 {
		maxUsers = models.UnlimitedCapacity
	}

	creatorID := r.UserID
	if creatorID == "" && r.Creator != nil {
		creatorID = userIdentity(r.Creator.ID, r.Creator.Name)
	}

	snap := models.RoomSnapshot{
		Room: models.Room{
			RoomID:    r.ID,
			Topic:     r.Topic,
			Language:  r.Language,
			Language2: r.Language2,
			Level:     models.ParseSkillLevel(r.Level),
			MaxUsers:  maxUsers,
			IsLocked:  r.Settings.IsLocked,
			NoMic:     r.Settings.NoMic,
			CreatorID: creatorID,
			UserCount: len(r.Clients),
		},
		ObservedAt: observedAt,
	}

	// One user listed twice, or two id-less users whose names slug to the
	// same fallback id, collapse to the first occurrence so position
	// reflects where they joined.
	seenUsers := make(map[string]struct{}, len(r.Clients))
	for i := range r.Clients {
		obs, ok := decodeClient(&r.Clients[i], i)
		if !ok {
			continue
		}
		if _, dup := seenUsers[obs.UserID]; dup {
			continue
		}
		seenUsers[obs.UserID] = struct{}{}
		snap.Present = append(snap.Present, obs)
	}
	snap.Room.UserCount = len(snap.Present)
	return snap, true
}

// decodeClient converts one present-user entry. A client without both id and
// name carries no identity and is dropped.
func decodeClient(c *rawClient, position int) (models.UserObservation, bool) {
	id := userIdentity(c.ID, c.Name)
	if id == "" {
		return models.UserObservation{}, false
	}
	return models.UserObservation{
		UserID:        id,
		Name:          c.Name,
		Avatar:        c.Avatar,
		IsVerified:    c.IsVerified,
		Followers:     coerceInt(c.Followers),
		Following:     coerceInt(c.Following),
		Friends:       coerceInt(c.Friends),
		SupporterTier: coerceInt(c.Supporter),
		Position:      position,
	}, true
}

// normalizeFragments handles the DOM-fragment envelope.
func normalizeFragments(frags []json.RawMessage, observedAt time.Time) *Result {
	res := &Result{}
	byID := make(map[string]int)
	for _, raw := range frags {
		var f rawFragment
		if err := json.Unmarshal(raw, &f); err != nil || f.RoomID == "" {
			res.Skipped++
			continue
		}

		snap := models.RoomSnapshot{
			Room: models.Room{
				RoomID:   f.RoomID,
				Topic:    f.Topic,
				Language: f.Language,
				Level:    models.ParseSkillLevel(f.LevelText),
				MaxUsers: models.UnlimitedCapacity,
			},
			ObservedAt: observedAt,
		}
		seenUsers := make(map[string]struct{}, len(f.Users))
		for i, u := range f.Users {
			if u.Username == "" {
				continue
			}
			// The markup carries no stable id; fall back to the
			// name slug. Slug collisions keep the first occurrence.
			id := models.SlugifyName(u.Username)
			if _, dup := seenUsers[id]; dup {
				continue
			}
			seenUsers[id] = struct{}{}
			snap.Present = append(snap.Present, models.UserObservation{
				UserID:    id,
				Name:      u.Username,
				Followers: parseCountText(u.FollowersText),
				Position:  i,
			})
		}
		snap.Room.UserCount = len(snap.Present)

		if i, seen := byID[snap.Room.RoomID]; seen {
			res.Rooms[i] = mergeSnapshots(res.Rooms[i], snap)
			continue
		}
		byID[snap.Room.RoomID] = len(res.Rooms)
		res.Rooms = append(res.Rooms, snap)
	}
	return res
}

// userIdentity returns the platform id when present and otherwise the
// display-name slug. Empty when neither yields anything.
func userIdentity(id, name string) string {
	if id != "" {
		return id
	}
	return models.SlugifyName(name)
}

// mergeSnapshots merges a duplicate room entry into the one seen earlier in
// the same payload. Later fields win; fields the later entry left at their
// zero value fall back to the earlier entry.
func mergeSnapshots(earlier, later models.RoomSnapshot) models.RoomSnapshot {
	merged := later
	if merged.Room.Topic == "" {
		merged.Room.Topic = earlier.Room.Topic
	}
	if merged.Room.Language == "" {
		merged.Room.Language = earlier.Room.Language
	}
	if merged.Room.Language2 == "" {
		merged.Room.Language2 = earlier.Room.Language2
	}
	if merged.Room.CreatorID == "" {
		merged.Room.CreatorID = earlier.Room.CreatorID
	}
	if merged.Room.MaxUsers == models.UnlimitedCapacity && earlier.Room.MaxUsers != models.UnlimitedCapacity {
		merged.Room.MaxUsers = earlier.Room.MaxUsers
	}
	if len(merged.Present) == 0 {
		merged.Present = earlier.Present
		merged.Room.UserCount = earlier.Room.UserCount
	}
	return merged
}
