// Package sqlite persists sweeper run history on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/conquest.space/internal/platform/storage/sqliteconn"
	"github.com/louisbranch/conquest.space/internal/services/sweeper/storage"
	"github.com/louisbranch/conquest.space/internal/services/sweeper/storage/sqlite/migrations"
)

// Store provides SQLite-backed sweep run persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a sweeper SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := sqliteconn.Open(path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordRun persists one sweep run summary.
func (s *Store) RecordRun(ctx context.Context, run storage.SweepRunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("started at is required")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		return fmt.Errorf("finished at must not precede started at")
	}
	counts := []int{run.Scanned, run.Resolved, run.AlreadyResolved, run.StillActive, run.Failed, run.RankingsProcessed, run.RankingsFailed}
	for _, count := range counts {
		if count < 0 {
			return fmt.Errorf("run counts must not be negative")
		}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sweep_runs (
	started_at,
	finished_at,
	scanned,
	resolved,
	already_resolved,
	still_active,
	failed,
	rankings_processed,
	rankings_failed,
	last_error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sqliteconn.ToMillis(run.StartedAt),
		sqliteconn.ToMillis(run.FinishedAt),
		run.Scanned,
		run.Resolved,
		run.AlreadyResolved,
		run.StillActive,
		run.Failed,
		run.RankingsProcessed,
		run.RankingsFailed,
		strings.TrimSpace(run.LastError),
	)
	if err != nil {
		return fmt.Errorf("record sweep run: %w", err)
	}
	return nil
}

// ListRuns lists newest-first sweep runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.SweepRunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	started_at,
	finished_at,
	scanned,
	resolved,
	already_resolved,
	still_active,
	failed,
	rankings_processed,
	rankings_failed,
	last_error
FROM sweep_runs
ORDER BY started_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sweep runs: %w", err)
	}
	defer rows.Close()

	runs := make([]storage.SweepRunRecord, 0, limit)
	for rows.Next() {
		var run storage.SweepRunRecord
		var startedAt, finishedAt int64
		if err := rows.Scan(
			&run.ID,
			&startedAt,
			&finishedAt,
			&run.Scanned,
			&run.Resolved,
			&run.AlreadyResolved,
			&run.StillActive,
			&run.Failed,
			&run.RankingsProcessed,
			&run.RankingsFailed,
			&run.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan sweep run: %w", err)
		}
		run.StartedAt = sqliteconn.FromMillis(startedAt)
		run.FinishedAt = sqliteconn.FromMillis(finishedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep runs: %w", err)
	}
	return runs, nil
}

var _ storage.RunStore = (*Store)(nil)
