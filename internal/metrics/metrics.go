// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package metrics defines the Prometheus instrumentation for Roomscope:
// sweep timing, normalizer skip counters, reconciliation outcomes, store
// errors, and read-API latency. Collectors are registered with promauto on
// the default registry and served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sweep metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomscope_sweep_duration_seconds",
			Help:    "Duration of one full sweep: fetch, normalize, reconcile",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomscope_sweeps_total",
			Help: "Total sweeps by outcome",
		},
		[]string{"outcome"}, // "ok", "fetch_error", "parse_error", "duplicate", "timeout"
	)

	PayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomscope_payload_bytes",
			Help:    "Size of raw snapshot payloads",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)

	// Normalizer metrics
	EntriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomscope_entries_skipped_total",
			Help: "Malformed room or user entries dropped during normalization",
		},
		[]string{"kind"}, // "room", "user"
	)

	// Reconciliation metrics
	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomscope_sessions_opened_total",
			Help: "Sessions opened by the reconciler",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomscope_sessions_closed_total",
			Help: "Sessions closed, by cause",
		},
		[]string{"cause"}, // "leave", "room_gone"
	)

	SessionsClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomscope_sessions_clamped_total",
			Help: "Session closes clamped to zero duration by clock skew",
		},
	)

	ProfileUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomscope_profile_updates_total",
			Help: "Profile merges that produced at least one field change",
		},
	)

	ReconcileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomscope_reconcile_errors_total",
			Help: "Per-entity reconciliation failures, isolated and skipped",
		},
		[]string{"entity"}, // "user", "session", "room", "activity"
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomscope_backups_total",
			Help: "Store backups by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	RoomsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomscope_rooms_deactivated_total",
			Help: "Rooms flipped inactive after vanishing from a sweep",
		},
	)

	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomscope_open_sessions",
			Help: "Open sessions tracked by the reconciler index",
		},
	)

	// Platform transport metrics
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomscope_fetch_duration_seconds",
			Help:    "Duration of platform snapshot fetches",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomscope_circuit_breaker_state",
			Help: "Platform circuit breaker state: 0=closed, 1=half-open, 2=open",
		},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomscope_api_request_duration_seconds",
			Help:    "Read-API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)
)

// RecordSweep records one completed sweep with its outcome and duration.
func RecordSweep(outcome string, elapsed time.Duration) {
	SweepsTotal.WithLabelValues(outcome).Inc()
	SweepDuration.Observe(elapsed.Seconds())
}

// RecordAPIRequest records one read-API request.
func RecordAPIRequest(path string, status int, elapsed time.Duration) {
	APIRequestDuration.WithLabelValues(path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
