// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

// Package scrape drives snapshot acquisition: a rate-limited, circuit-broken
// HTTP client against the interception endpoint, and the sweep manager that
// turns fetched payloads into reconciled state on a fixed cadence.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/roomscope/roomscope/internal/config"
	"github.com/roomscope/roomscope/internal/logging"
	"github.com/roomscope/roomscope/internal/metrics"
)

// maxPayloadBytes caps a single snapshot body. The platform serves a few
// hundred rooms at most; anything past this is a broken capture.
const maxPayloadBytes = 16 << 20

// Client fetches raw snapshot payloads from the platform boundary.
//
// Every request passes a token-bucket rate limiter and a circuit breaker.
// The breaker uses real time for its recovery windows; tests exercise the
// transport against httptest servers rather than mocking the breaker.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	url        string
	userAgent  string
}

// NewClient creates a platform client from configuration.
func NewClient(cfg *config.PlatformConfig) *Client {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 1
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "platform-snapshot",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.Set(breakerStateValue(to))
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    breaker,
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
	}
}

// FetchSnapshot retrieves one raw payload. Returns the body bytes untouched;
// shape detection belongs to the normalizer.
func (c *Client) FetchSnapshot(ctx context.Context) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx)
	})
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("platform circuit open: %w", err)
		}
		return nil, err
	}
	metrics.PayloadBytes.Observe(float64(len(body)))
	return body, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch failed: %w", err)
	}
	defer closeQuietly(resp.Body)

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("snapshot fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return nil, fmt.Errorf("snapshot body exceeds %d bytes", maxPayloadBytes)
	}
	return body, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing resource")
	}
}
