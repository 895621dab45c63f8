// Package sqlite implements battle storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/louisbranch/conquest.space/internal/platform/storage/sqliteconn"
	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage/sqlite/migrations"
)

// Store provides SQLite-backed persistence for battles and rankings.
type Store struct {
	sqlDB     *sql.DB
	rankTable domain.RankTable
}

// Option configures a Store.
type Option func(*Store)

// WithRankTable sets the table used to label rank scores.
func WithRankTable(table domain.RankTable) Option {
	return func(s *Store) {
		s.rankTable = table
	}
}

var (
	_ storage.BattleStore     = (*Store)(nil)
	_ storage.RegionStore     = (*Store)(nil)
	_ storage.StatsStore      = (*Store)(nil)
	_ storage.IdentityStore   = (*Store)(nil)
	_ storage.MembershipStore = (*Store)(nil)
	_ storage.MedalStore      = (*Store)(nil)
)

// Open opens a battle SQLite store at the provided path.
func Open(path string, opts ...Option) (*Store, error) {
	sqlDB, err := sqliteconn.Open(path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	store := &Store{sqlDB: sqlDB, rankTable: domain.DefaultRankTable()}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullBool(value *bool) sql.NullBool {
	if value == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *value, Valid: true}
}

func boolPtr(value sql.NullBool) *bool {
	if !value.Valid {
		return nil
	}
	v := value.Bool
	return &v
}
