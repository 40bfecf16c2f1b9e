// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package snapshot

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// rawRoom is the wire shape of one room entry as produced by the platform's
// internal API. Both the array payload and the keyed-map payload carry
// entries of this shape. Fields the capture omits decode to zero values.
type rawRoom struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Topic     string          `json:"topic"`
	Language  string          `json:"language"`
	Language2 string          `json:"language2"`
	Level     string          `json:"level"`
	MaxPeople json.RawMessage `json:"maxPeople"`
	URL       string          `json:"url"`
	Settings  rawSettings     `json:"settings"`
	Clients   []rawClient     `json:"clients"`
	Creator   *rawClient      `json:"creator"`
}

type rawSettings struct {
	NoMic    bool `json:"noMic"`
	IsLocked bool `json:"isLocked"`
}

// rawClient is one present user. Counter fields use RawMessage because the
// platform has served them as numbers, numeric strings, and abbreviated
// display text ("1.2k") across observed variants.
type rawClient struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Avatar     string          `json:"avatar"`
	IsVerified bool            `json:"isVerified"`
	Followers  json.RawMessage `json:"followers"`
	Following  json.RawMessage `json:"following"`
	Friends    json.RawMessage `json:"friends"`
	Supporter  json.RawMessage `json:"supporter"`
}

// rawFragment is the pre-parsed DOM-fragment shape emitted by the scraping
// layer when it falls back to reading the web client's markup instead of
// intercepting API traffic. Carries the documented minimal attribute set.
type rawFragment struct {
	RoomID    string            `json:"roomId"`
	Language  string            `json:"language"`
	LevelText string            `json:"levelText"`
	Topic     string            `json:"topic"`
	Users     []rawFragmentUser `json:"users"`
}

type rawFragmentUser struct {
	Username      string `json:"username"`
	FollowersText string `json:"followersText"`
}

// coerceInt extracts an integer from a raw JSON value that may be a number,
// a numeric string, or abbreviated display text. Anything unparseable
// coerces to 0.
func coerceInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseCountText(s)
	}

	return 0
}

// parseCountText parses platform-rendered counter text: plain digits,
// digits with comma separators ("1,234"), or abbreviated magnitudes
// ("1.2k", "3m"). Unparseable text yields 0.
func parseCountText(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch s[len(s)-1] {
	case 'k':
		multiplier = 1_000
		s = s[:len(s)-1]
	case 'm':
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}

	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(n * multiplier)
}
