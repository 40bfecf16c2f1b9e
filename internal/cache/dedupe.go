// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package cache provides the payload deduplicator used by the sweep driver.
//
// The interception endpoint frequently replays the same capture across
// consecutive polls. Re-reconciling an identical payload is wasted work, so
// the driver fingerprints each raw body and skips ones seen recently.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type dedupeEntry struct {
	digest   string
	seenAt   time.Time
	expireAt time.Time
	prev     *dedupeEntry
	next     *dedupeEntry
}

// PayloadDeduper is a thread-safe LRU of payload fingerprints with TTL
// expiry. All operations are O(1): a doubly-linked list keeps recency order
// and a map gives direct lookup.
//
// The TTL matters as much as the capacity: an unchanged room list must still
// be re-reconciled eventually, or session last-activity drifts and a store
// rebuilt mid-outage never converges.
type PayloadDeduper struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration

	entries map[string]*dedupeEntry

	// head.next is most recently seen, tail.prev the oldest.
	head *dedupeEntry
	tail *dedupeEntry

	hits   int64
	misses int64
}

// NewPayloadDeduper creates a deduper holding up to capacity fingerprints,
// each valid for ttl.
func NewPayloadDeduper(capacity int, ttl time.Duration) *PayloadDeduper {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	d := &PayloadDeduper{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*dedupeEntry, capacity),
		head:     &dedupeEntry{},
		tail:     &dedupeEntry{},
	}
	d.head.next = d.tail
	d.tail.prev = d.head
	return d
}

// Fingerprint returns the digest used as the dedupe key for a raw payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Seen reports whether an identical payload was recorded within the TTL.
// When it was not, the fingerprint is recorded, so a Seen call both tests
// and claims the payload.
func (d *PayloadDeduper) Seen(payload []byte) bool {
	digest := Fingerprint(payload)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[digest]; ok {
		if now.Before(e.expireAt) {
			d.moveToFront(e)
			d.hits++
			return true
		}
		d.unlink(e)
	}

	e := &dedupeEntry{digest: digest, seenAt: now, expireAt: now.Add(d.ttl)}
	d.pushFront(e)
	d.entries[digest] = e
	for len(d.entries) > d.capacity {
		d.unlink(d.tail.prev)
	}
	d.misses++
	return false
}

// Len returns the number of live fingerprints, counting expired entries that
// have not been lazily evicted yet.
func (d *PayloadDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Stats returns hit/miss counters for observability.
func (d *PayloadDeduper) Stats() (hits, misses int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits, d.misses
}

// Reset drops all recorded fingerprints. Used after a reconciler index
// rebuild, when skipping a replayed payload would hide real state.
func (d *PayloadDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]*dedupeEntry, d.capacity)
	d.head.next = d.tail
	d.tail.prev = d.head
}

func (d *PayloadDeduper) pushFront(e *dedupeEntry) {
	e.prev = d.head
	e.next = d.head.next
	d.head.next.prev = e
	d.head.next = e
}

func (d *PayloadDeduper) unlink(e *dedupeEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(d.entries, e.digest)
}

func (d *PayloadDeduper) moveToFront(e *dedupeEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	d.pushFront(e)
}
