package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Default budget window: conversations endpoints sit in Slack's Tier 3
// (~50 req/min); stay under half of that.
const (
	defaultWindowSeconds = 60
	defaultMaxRequests   = 20
)

// RateLimit is the persisted request budget for one (source, endpoint).
type RateLimit struct {
	SourceID              string
	Endpoint              string
	RequestsMade          int
	WindowStart           time.Time
	WindowDurationSeconds int
	MaxRequests           int
}

// CheckRateLimit reports whether another request fits in the current
// window, initializing or resetting the window as needed.
func (s *Store) CheckRateLimit(ctx context.Context, sourceID, endpoint string) (bool, error) {
	var rl RateLimit
	err := s.conn.QueryRowContext(ctx, `
		SELECT source_id, endpoint, requests_made, window_start,
		       window_duration_seconds, max_requests
		FROM rate_limits
		WHERE source_id = ? AND endpoint = ?
	`, sourceID, endpoint).Scan(
		&rl.SourceID, &rl.Endpoint, &rl.RequestsMade, &rl.WindowStart,
		&rl.WindowDurationSeconds, &rl.MaxRequests,
	)

	if err == sql.ErrNoRows {
		return true, s.initRateLimit(ctx, sourceID, endpoint)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	windowEnd := rl.WindowStart.Add(time.Duration(rl.WindowDurationSeconds) * time.Second)
	if time.Now().After(windowEnd) {
		return true, s.resetRateLimitWindow(ctx, sourceID, endpoint)
	}

	return rl.RequestsMade < rl.MaxRequests, nil
}

// RecordRequest counts one request against the current window.
func (s *Store) RecordRequest(ctx context.Context, sourceID, endpoint string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE rate_limits
		SET requests_made = requests_made + 1
		WHERE source_id = ? AND endpoint = ?
	`, sourceID, endpoint)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

func (s *Store) initRateLimit(ctx context.Context, sourceID, endpoint string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO rate_limits (
			source_id, endpoint, requests_made, window_start,
			window_duration_seconds, max_requests
		) VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT(source_id, endpoint) DO NOTHING
	`, sourceID, endpoint, time.Now(), defaultWindowSeconds, defaultMaxRequests)
	if err != nil {
		return fmt.Errorf("failed to init rate limit: %w", err)
	}
	return nil
}

func (s *Store) resetRateLimitWindow(ctx context.Context, sourceID, endpoint string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE rate_limits
		SET requests_made = 0, window_start = ?
		WHERE source_id = ? AND endpoint = ?
	`, time.Now(), sourceID, endpoint)
	if err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}
	return nil
}
