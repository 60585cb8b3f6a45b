// File: internal/history/history.go
// Optional Postgres recorder of send-attempt outcomes. Disabled by default;
// when enabled the run loop treats it as fire-and-forget telemetry, so a
// broken database never blocks a send.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Attempt is one recorded send-attempt outcome.
type Attempt struct {
	ID       string
	Site     string
	Strategy string
	// Outcome is "confirmed", "not-found", "interaction-failed",
	// "unconfirmed", or "rejected".
	Outcome    string
	Duration   time.Duration
	OccurredAt time.Time
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS send_attempts (
    id          TEXT PRIMARY KEY,
    site        TEXT NOT NULL,
    strategy    TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL
);`

// Store provides the PostgreSQL implementation.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and ensures the schema exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure send_attempts table: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("history"),
	}, nil
}

// RecordAttempt inserts one outcome row.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	occurredAt := a.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO send_attempts (id, site, strategy, outcome, duration_ms, occurred_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Site, a.Strategy, a.Outcome, a.Duration.Milliseconds(), occurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt row: %w", err)
	}
	return nil
}

// RecentAttempts returns the latest rows, newest first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, site, strategy, outcome, duration_ms, occurred_at
         FROM send_attempts
         ORDER BY occurred_at DESC
         LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var durationMS int64
		if err := rows.Scan(&a.ID, &a.Site, &a.Strategy, &a.Outcome, &durationMS, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
