// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package config loads and validates Roomscope configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML config file, then environment variables. Environment variables use
// underscore-separated paths, e.g. PLATFORM_POLL_INTERVAL maps to
// platform.poll_interval.
package config

import "time"

// Config is the root configuration for the Roomscope process.
type Config struct {
	Platform  PlatformConfig  `koanf:"platform"`
	Database  DatabaseConfig  `koanf:"database"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Backup    BackupConfig    `koanf:"backup"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// PlatformConfig configures the platform snapshot driver.
type PlatformConfig struct {
	// URL is the base URL of the interception/export endpoint that serves
	// raw room snapshots. The browser-automation layer in front of the
	// platform exposes this boundary.
	URL string `koanf:"url"`

	// PollInterval is the cadence of full sweeps.
	PollInterval time.Duration `koanf:"poll_interval"`

	// SweepTimeout bounds one full cycle: fetch, normalize, reconcile all rooms.
	SweepTimeout time.Duration `koanf:"sweep_timeout"`

	// RequestTimeout bounds a single snapshot fetch.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimit is the maximum outbound requests per second to the platform.
	RateLimit float64 `koanf:"rate_limit"`

	// UserAgent is sent on every platform request.
	UserAgent string `koanf:"user_agent"`

	// PayloadCacheTTL is how long an identical raw payload is remembered so
	// back-to-back duplicate captures are skipped without reprocessing.
	PayloadCacheTTL time.Duration `koanf:"payload_cache_ttl"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Use :memory: for ephemeral runs.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage, e.g. "1GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`

	// QueryTimeout bounds individual store calls made during reconciliation.
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// ReconcileConfig configures the session reconciler.
type ReconcileConfig struct {
	// Workers bounds concurrent per-room reconciliations within one sweep.
	// Rooms are independent; this is a cap on store connection pressure.
	Workers int `koanf:"workers"`

	// RetryAttempts is the number of retries for transient store errors on a
	// single room before that room is skipped for the cycle.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryDelay is the pause between store retries.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig configures read-API behavior.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// BackupConfig configures periodic exports of the store.
type BackupConfig struct {
	Enabled bool `koanf:"enabled"`

	// Dir is the root directory backups are written under.
	Dir string `koanf:"dir"`

	// Interval is the cadence of automatic backups.
	Interval time.Duration `koanf:"interval"`

	// Keep is the number of most recent backups retained.
	Keep int `koanf:"keep"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are loaded
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			URL:             "",
			PollInterval:    30 * time.Second,
			SweepTimeout:    2 * time.Minute,
			RequestTimeout:  15 * time.Second,
			RateLimit:       2.0,
			UserAgent:       "roomscope/1.0",
			PayloadCacheTTL: 5 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:         "/data/roomscope.duckdb",
			MaxMemory:    "1GB",
			Threads:      0,
			QueryTimeout: 10 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Workers:       4,
			RetryAttempts: 2,
			RetryDelay:    500 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    4187,
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Backup: BackupConfig{
			Enabled:  false,
			Dir:      "/data/backups",
			Interval: 24 * time.Hour,
			Keep:     7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
