package ratelimit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps counters in a shared table so every instance of the
// service draws down the same per-client budget.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the counter table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limits (
			client_key   TEXT   NOT NULL,
			window_start BIGINT NOT NULL,
			count        INT    NOT NULL DEFAULT 0,
			PRIMARY KEY (client_key, window_start)
		)`)
	if err != nil {
		return fmt.Errorf("creating rate_limits table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Increment(ctx context.Context, clientKey string, window int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (client_key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (client_key, window_start)
		DO UPDATE SET count = rate_limits.count + 1
		RETURNING count`,
		clientKey, window).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Sweep(ctx context.Context, cutoff int64) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM rate_limits WHERE window_start < $1`, cutoff); err != nil {
		return fmt.Errorf("sweeping stale rate limit windows: %w", err)
	}
	return nil
}
