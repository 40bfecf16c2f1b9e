// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package api serves the read-only reporting views over the store: active
// rooms, room occupants, per-user session history, activity, and aggregate
// statistics. The reconciliation core never depends on this package.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/metrics"
)

// NewRouter builds the HTTP handler tree.
func NewRouter(h *Handlers, cfg *config.APIConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Health stays outside the rate limit so probes never get throttled.
		r.Route("/health", func(r chi.Router) {
			r.Get("/", h.Health)
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
			r.Use(requestMetrics)

			r.Get("/rooms", h.ListRooms)
			r.Get("/rooms/{roomID}", h.GetRoom)
			r.Get("/rooms/{roomID}/users", h.ListRoomUsers)
			r.Get("/users/{userID}", h.GetUser)
			r.Get("/users/{userID}/sessions", h.ListUserSessions)
			r.Get("/users/{userID}/activity", h.ListUserActivity)
			r.Get("/stats", h.Stats)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestMetrics records latency per route pattern so path parameters do not
// explode label cardinality.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordAPIRequest(pattern, ww.Status(), time.Since(start))
	})
}
