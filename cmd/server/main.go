// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package main is the entry point for the Roomscope server.
//
// Roomscope continuously discovers voice-chat rooms and their occupants on a
// third-party social platform and reconciles each observation against a
// DuckDB store, producing a queryable history of who was in which room when.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered defaults, config file, environment
//  2. Logging: zerolog, global logger
//  3. Database: DuckDB store; unreachable store is fatal
//  4. Reconciler: open-session index rebuilt from the store
//  5. Supervisor tree: sweep manager (ingest layer), HTTP server (api layer)
//
// The platform boundary is configured via PLATFORM_URL, the sweep cadence
// via PLATFORM_POLL_INTERVAL. The read API listens on SERVER_PORT (default
// 4187). Shutdown on SIGINT/SIGTERM is graceful: in-flight sweeps and HTTP
// requests finish within the supervisor's shutdown timeout, then the store
// is checkpointed and closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomscope/roomscope/internal/api"
	"github.com/roomscope/roomscope/internal/backup"
	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/database"
	"github.com/roomscope/roomscope/internal/logging"
	"github.com/roomscope/roomscope/internal/reconcile"
	"github.com/roomscope/roomscope/internal/scrape"
	"github.com/roomscope/roomscope/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("platform_url", cfg.Platform.URL).
		Str("db_path", cfg.Database.Path).
		Dur("poll_interval", cfg.Platform.PollInterval).
		Msg("Starting Roomscope")

	// An unreachable store at startup is the one fatal condition; every
	// later failure is isolated and self-heals on a following sweep.
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := reconcile.New(db, &cfg.Reconcile)
	if err := reconciler.Rebuild(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to rebuild open-session index")
	}

	client := scrape.NewClient(&cfg.Platform)
	sweeper := scrape.NewManager(client, reconciler, &cfg.Platform)

	handlers := api.NewHandlers(db, sweeper, &cfg.API)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, &cfg.API),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(supervisor.NewManagerService("sweep-manager", sweeper))
	if cfg.Backup.Enabled {
		tree.AddIngestService(supervisor.NewManagerService("backup-manager",
			backup.NewManager(db, &cfg.Backup)))
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Roomscope stopped gracefully")
}
