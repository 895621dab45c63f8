package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/storage/sqliteconn"
	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage"
)

// GetRegion loads one region by hex key.
func (s *Store) GetRegion(ctx context.Context, regionKey string) (domain.Region, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Region{}, err
	}
	var (
		region      domain.Region
		owner       sql.NullString
		conqueredAt sql.NullInt64
		updatedAt   int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT region_key, owner_faction_id, fortification_level, last_conquered_at, updated_at
FROM regions WHERE region_key = ?
`, strings.TrimSpace(regionKey)).Scan(&region.Key, &owner, &region.FortificationLevel, &conqueredAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Region{}, storage.ErrNotFound
		}
		return domain.Region{}, fmt.Errorf("get region: %w", err)
	}
	region.OwnerFactionID = owner.String
	region.LastConqueredAt = sqliteconn.TimePtr(conqueredAt)
	region.UpdatedAt = sqliteconn.FromMillis(updatedAt)
	return region, nil
}

// TransferRegion assigns a region to a new owner, creating it when unknown
// and resetting fortification to the baseline. Repeating a transfer leaves the
// same state; concurrent transfers resolve last writer wins.
func (s *Store) TransferRegion(ctx context.Context, regionKey string, newOwnerFactionID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		return transferRegionTx(ctx, tx, regionKey, newOwnerFactionID, at)
	})
}

func transferRegionTx(ctx context.Context, q queryer, regionKey string, newOwner string, at time.Time) error {
	regionKey = strings.TrimSpace(regionKey)
	newOwner = strings.TrimSpace(newOwner)
	if regionKey == "" {
		return fmt.Errorf("region key is required")
	}
	if newOwner == "" {
		return fmt.Errorf("new owner is required")
	}
	atMillis := sqliteconn.ToMillis(at)
	if _, err := q.ExecContext(ctx, `
INSERT INTO regions (region_key, owner_faction_id, fortification_level, last_conquered_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(region_key) DO UPDATE SET
    owner_faction_id = excluded.owner_faction_id,
    fortification_level = excluded.fortification_level,
    last_conquered_at = excluded.last_conquered_at,
    updated_at = excluded.updated_at
`, regionKey, newOwner, domain.BaselineFortification, atMillis, atMillis); err != nil {
		return fmt.Errorf("transfer region: %w", err)
	}
	return nil
}

// PutRegion seeds or replaces a region, including its fortification.
func (s *Store) PutRegion(ctx context.Context, region domain.Region) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	key := strings.TrimSpace(region.Key)
	if key == "" {
		return fmt.Errorf("region key is required")
	}
	level := region.FortificationLevel
	if level < domain.BaselineFortification {
		level = domain.BaselineFortification
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO regions (region_key, owner_faction_id, fortification_level, last_conquered_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(region_key) DO UPDATE SET
    owner_faction_id = excluded.owner_faction_id,
    fortification_level = excluded.fortification_level,
    last_conquered_at = excluded.last_conquered_at,
    updated_at = excluded.updated_at
`, key, nullString(region.OwnerFactionID), level, sqliteconn.NullMillis(region.LastConqueredAt), sqliteconn.ToMillis(region.UpdatedAt)); err != nil {
		return fmt.Errorf("put region: %w", err)
	}
	return nil
}
