package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/flow"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
    CREATE TABLE IF NOT EXISTS registration_runs (
        run_id           TEXT PRIMARY KEY,
        identity         TEXT NOT NULL,
        status           TEXT NOT NULL,
        message          TEXT NOT NULL DEFAULT '',
        url              TEXT NOT NULL DEFAULT '',
        duration_seconds DOUBLE PRECISION NOT NULL,
        started_at       TIMESTAMPTZ NOT NULL,
        evidence         TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS registration_runs_started_at_idx ON registration_runs (started_at DESC);
`

const insertRunSQL = `
    INSERT INTO registration_runs (run_id, identity, status, message, url, duration_seconds, started_at, evidence)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (run_id) DO UPDATE SET
        status = EXCLUDED.status,
        message = EXCLUDED.message,
        url = EXCLUDED.url,
        duration_seconds = EXCLUDED.duration_seconds,
        evidence = EXCLUDED.evidence;
`

const recentRunsSQL = `
    SELECT run_id, identity, status, message, url, duration_seconds, started_at, evidence
    FROM registration_runs
    ORDER BY started_at DESC
    LIMIT $1;
`

const statusCountsSQL = `
    SELECT status, count(*)
    FROM registration_runs
    GROUP BY status;
`

// Store persists registration run results in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the results table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveResult upserts a run result keyed by its run ID.
func (s *Store) SaveResult(ctx context.Context, r flow.RunResult) error {
	tag, err := s.pool.Exec(ctx, insertRunSQL,
		r.RunID, r.Identity, string(r.Status), r.Message, r.URL,
		r.DurationSeconds, r.StartedAt.UTC(), r.Evidence,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("unexpected rows affected saving run %s: %d", r.RunID, tag.RowsAffected())
	}
	s.log.Debug("Saved run result", zap.String("run_id", r.RunID), zap.String("status", string(r.Status)))
	return nil
}

// RecentResults returns up to limit runs, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]flow.RunResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []flow.RunResult
	for rows.Next() {
		var r flow.RunResult
		var statusStr string
		if err := rows.Scan(
			&r.RunID, &r.Identity, &statusStr, &r.Message, &r.URL,
			&r.DurationSeconds, &r.StartedAt, &r.Evidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Status = flow.Status(statusStr)
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}

// StatusCounts returns the number of stored runs per status.
func (s *Store) StatusCounts(ctx context.Context) (map[flow.Status]int, error) {
	rows, err := s.pool.Query(ctx, statusCountsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[flow.Status]int)
	for rows.Next() {
		var statusStr string
		var n int64
		if err := rows.Scan(&statusStr, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[flow.Status(statusStr)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return counts, nil
}
