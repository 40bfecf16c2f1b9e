// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package merge implements the profile merge policy: given a stored user and
// a fresh observation, it decides the new persisted values field by field
// without letting a bad capture corrupt previously good data.
//
// The central rule is zero-suppression: an observed zero never overwrites a
// positive stored counter. Captures routinely report counters as zero when
// the platform omits them or the scrape is partial; a real drop to zero is
// indistinguishable from that and is deliberately suppressed. This trades a
// missed real drop for never corrupting good data.
package merge

import (
	"time"

	"github.com/roomscope/roomscope/internal/models"
)

// Supporter tier bounds. Out-of-range input clamps into this range.
const (
	minSupporterTier = 0
	maxSupporterTier = 10
)

// Result is the outcome of merging one observation into stored state.
type Result struct {
	// User holds the values to persist.
	User models.User

	// Changes lists the field-level differences relative to the stored
	// record, computed after zero-suppression. A suppressed zero is not a
	// change. Empty for a brand-new user.
	Changes []models.FieldChange

	// IsNew reports that no stored record existed. New users produce no
	// Changes; their first observation is not a profile update.
	IsNew bool
}

// Changed reports whether the merge produced at least one field-level change.
func (r *Result) Changed() bool {
	return len(r.Changes) > 0
}

// Merge applies the profile merge policy. stored may be nil for a first
// observation; now is the observation time. Pure function: neither input is
// mutated and no clock is read.
func Merge(stored *models.User, obs models.UserObservation, now time.Time) Result {
	if stored == nil {
		return Result{
			User: models.User{
				UserID:        obs.UserID,
				Name:          obs.Name,
				Avatar:        obs.Avatar,
				IsVerified:    obs.IsVerified,
				Followers:     obs.Followers,
				Following:     obs.Following,
				Friends:       obs.Friends,
				SupporterTier: clampTier(obs.SupporterTier),
				FirstSeen:     now,
				LastSeen:      now,
			},
			IsNew: true,
		}
	}

	merged := *stored
	var changes []models.FieldChange

	// Identity fields adopt observed values only when non-empty.
	if obs.Name != "" && obs.Name != merged.Name {
		changes = append(changes, models.FieldChange{Field: "name", Old: merged.Name, New: obs.Name})
		merged.Name = obs.Name
	}
	if obs.Avatar != "" && obs.Avatar != merged.Avatar {
		changes = append(changes, models.FieldChange{Field: "avatar", Old: merged.Avatar, New: obs.Avatar})
		merged.Avatar = obs.Avatar
	}
	if obs.IsVerified != merged.IsVerified {
		changes = append(changes, models.FieldChange{Field: "is_verified", Old: merged.IsVerified, New: obs.IsVerified})
		merged.IsVerified = obs.IsVerified
	}

	merged.Followers = mergeCounter("followers", merged.Followers, obs.Followers, &changes)
	merged.Following = mergeCounter("following", merged.Following, obs.Following, &changes)
	merged.Friends = mergeCounter("friends", merged.Friends, obs.Friends, &changes)

	if tier := clampTier(obs.SupporterTier); tier != merged.SupporterTier {
		changes = append(changes, models.FieldChange{
			Field: "supporter_tier",
			Old:   merged.SupporterTier,
			New:   tier,
			Diff:  tier - merged.SupporterTier,
		})
		merged.SupporterTier = tier
	}

	// first_seen is set once and never changed; last_seen only advances.
	if now.After(merged.LastSeen) {
		merged.LastSeen = now
	}

	return Result{User: merged, Changes: changes}
}

// mergeCounter applies the per-counter policy: an observed zero against a
// positive stored value is a scraper artifact and is retained silently; any
// other difference is adopted and recorded.
func mergeCounter(field string, stored, observed int, changes *[]models.FieldChange) int {
	if observed == 0 && stored > 0 {
		return stored
	}
	if observed != stored {
		*changes = append(*changes, models.FieldChange{
			Field: field,
			Old:   stored,
			New:   observed,
			Diff:  observed - stored,
		})
	}
	return observed
}

// clampTier forces the supporter tier into [0, 10]. The normalizer already
// coerces non-numeric input to 0; this guards the range.
func clampTier(tier int) int {
	if tier < minSupporterTier {
		return minSupporterTier
	}
	if tier > maxSupporterTier {
		return maxSupporterTier
	}
	return tier
}
