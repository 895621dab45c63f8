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

const battleColumns = `id, region_key, attacker_faction_id, defender_faction_id, current_defense, initial_defense,
attacker_score, defender_score, started_at, ends_at, status, resolved_at, rankings_processed_at`

// CreateBattle inserts a new active battle. A second active battle for the
// same region returns storage.ErrConflict.
func (s *Store) CreateBattle(ctx context.Context, battle domain.Battle) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	battle.ID = strings.TrimSpace(battle.ID)
	if battle.ID == "" {
		return fmt.Errorf("battle id is required")
	}
	if battle.Status != domain.StatusActive {
		return fmt.Errorf("new battle must be active, got %q", battle.Status)
	}
	if battle.InitialDefense <= 0 || battle.CurrentDefense < 0 || battle.CurrentDefense > battle.InitialDefense {
		return fmt.Errorf("battle defense %d/%d is out of bounds", battle.CurrentDefense, battle.InitialDefense)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO battles (`+battleColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
`,
		battle.ID,
		battle.RegionKey,
		battle.AttackerFactionID,
		nullString(battle.DefenderFactionID),
		battle.CurrentDefense,
		battle.InitialDefense,
		battle.AttackerScore,
		battle.DefenderScore,
		sqliteconn.ToMillis(battle.StartedAt),
		sqliteconn.ToMillis(battle.EndsAt),
		string(battle.Status),
	)
	if err != nil {
		if sqliteconn.IsUniqueConstraint(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert battle: %w", err)
	}
	return nil
}

// GetBattle loads one battle.
func (s *Store) GetBattle(ctx context.Context, battleID string) (domain.Battle, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Battle{}, err
	}
	return getBattle(ctx, s.sqlDB, strings.TrimSpace(battleID))
}

func getBattle(ctx context.Context, q queryer, battleID string) (domain.Battle, error) {
	if battleID == "" {
		return domain.Battle{}, storage.ErrNotFound
	}
	row := q.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = ?`, battleID)
	battle, err := scanBattle(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Battle{}, storage.ErrNotFound
		}
		return domain.Battle{}, fmt.Errorf("get battle: %w", err)
	}
	return battle, nil
}

func scanBattle(scan func(dest ...any) error) (domain.Battle, error) {
	var (
		battle      domain.Battle
		defender    sql.NullString
		startedAt   int64
		endsAt      int64
		status      string
		resolvedAt  sql.NullInt64
		processedAt sql.NullInt64
	)
	if err := scan(
		&battle.ID,
		&battle.RegionKey,
		&battle.AttackerFactionID,
		&defender,
		&battle.CurrentDefense,
		&battle.InitialDefense,
		&battle.AttackerScore,
		&battle.DefenderScore,
		&startedAt,
		&endsAt,
		&status,
		&resolvedAt,
		&processedAt,
	); err != nil {
		return domain.Battle{}, err
	}
	battle.DefenderFactionID = defender.String
	battle.StartedAt = sqliteconn.FromMillis(startedAt)
	battle.EndsAt = sqliteconn.FromMillis(endsAt)
	battle.Status = domain.Status(status)
	battle.ResolvedAt = sqliteconn.TimePtr(resolvedAt)
	battle.RankingsProcessedAt = sqliteconn.TimePtr(processedAt)
	return battle, nil
}

// ApplyAttack applies one strike in a single write transaction: the clamped
// defense update, the combat log entry, participation, the striker's stats
// and the resolution check.
//
// A strike against a battle that is terminal, or whose deadline passed,
// returns storage.ErrAlreadyResolved together with the resolution observed;
// an expired battle is transitioned by that same call.
func (s *Store) ApplyAttack(ctx context.Context, record storage.AttackRecord) (storage.AttackOutcome, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AttackOutcome{}, err
	}
	if err := record.Strike.Validate(); err != nil {
		return storage.AttackOutcome{}, err
	}
	battleID := strings.TrimSpace(record.BattleID)
	userID := strings.TrimSpace(record.UserID)
	if battleID == "" {
		return storage.AttackOutcome{}, storage.ErrNotFound
	}
	if userID == "" {
		return storage.AttackOutcome{}, fmt.Errorf("user id is required")
	}
	if record.At.IsZero() {
		return storage.AttackOutcome{}, fmt.Errorf("attack time is required")
	}
	at := record.At.UTC()

	var attackerGain, defenderGain int64
	if record.Strike.Side == domain.SideAttacker {
		attackerGain = record.Strike.Damage
	} else {
		defenderGain = record.Strike.Damage
	}

	var (
		outcome  storage.AttackOutcome
		rejected bool
	)
	err := sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		outcome = storage.AttackOutcome{}
		rejected = false

		row := tx.QueryRowContext(ctx, `
UPDATE battles
SET current_defense = MAX(0, MIN(initial_defense, current_defense + ?)),
    attacker_score = attacker_score + ?,
    defender_score = defender_score + ?
WHERE id = ? AND status = 'active' AND ends_at > ?
RETURNING `+battleColumns,
			record.Strike.DefenseDelta(), attackerGain, defenderGain, battleID, sqliteconn.ToMillis(at))
		battle, err := scanBattle(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			resolution, resolveErr := resolveTx(ctx, tx, battleID, at)
			if resolveErr != nil {
				return resolveErr
			}
			outcome.Resolution = resolution
			rejected = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply strike: %w", err)
		}

		participation, isNew, err := upsertParticipationTx(ctx, tx, battleID, userID, record.Strike.Side, record.Strike.Damage, at)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO combat_log (battle_id, user_id, side, damage, defense_after, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, battleID, userID, string(record.Strike.Side), record.Strike.Damage, battle.CurrentDefense, sqliteconn.ToMillis(at)); err != nil {
			return fmt.Errorf("append combat log: %w", err)
		}
		stats, err := s.accumulateStatsTx(ctx, tx, userID, record.Strike.Damage, participation.DamageDealt, isNew, at)
		if err != nil {
			return err
		}

		resolution := domain.Resolution{
			BattleID:       battle.ID,
			Status:         battle.Status,
			CurrentDefense: battle.CurrentDefense,
			Outcome:        domain.OutcomeStillActive,
		}
		if domain.Resolve(battle, at).Terminal() {
			resolution, err = resolveTx(ctx, tx, battleID, at)
			if err != nil {
				return err
			}
			battle.Status = resolution.Status
			battle.ResolvedAt = resolution.ResolvedAt
		}

		outcome = storage.AttackOutcome{
			Battle:        battle,
			Participation: participation,
			Stats:         stats,
			Resolution:    resolution,
		}
		return nil
	})
	if err != nil {
		return storage.AttackOutcome{}, err
	}
	if rejected {
		return outcome, storage.ErrAlreadyResolved
	}
	return outcome, nil
}

// ResolveBattle applies the terminal transition when one is due. Calling it
// again on a terminal battle reports OutcomeAlreadyResolved.
func (s *Store) ResolveBattle(ctx context.Context, battleID string, now time.Time) (domain.Resolution, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Resolution{}, err
	}
	battleID = strings.TrimSpace(battleID)
	var resolution domain.Resolution
	err := sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		var err error
		resolution, err = resolveTx(ctx, tx, battleID, now.UTC())
		return err
	})
	if err != nil {
		return domain.Resolution{}, err
	}
	return resolution, nil
}

func resolveTx(ctx context.Context, tx *sql.Tx, battleID string, now time.Time) (domain.Resolution, error) {
	battle, err := getBattle(ctx, tx, battleID)
	if err != nil {
		return domain.Resolution{}, err
	}
	resolution := domain.Resolution{
		BattleID:       battle.ID,
		Status:         battle.Status,
		CurrentDefense: battle.CurrentDefense,
		ResolvedAt:     battle.ResolvedAt,
	}
	if battle.Status.Terminal() {
		resolution.Outcome = domain.OutcomeAlreadyResolved
		return resolution, nil
	}
	next := domain.Resolve(battle, now)
	if !next.Terminal() {
		resolution.Outcome = domain.OutcomeStillActive
		return resolution, nil
	}

	result, err := tx.ExecContext(ctx, `
UPDATE battles SET status = ?, resolved_at = ?
WHERE id = ? AND status = 'active'
`, string(next), sqliteconn.ToMillis(now), battleID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve battle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve battle rows affected: %w", err)
	}
	if affected == 0 {
		current, err := getBattle(ctx, tx, battleID)
		if err != nil {
			return domain.Resolution{}, err
		}
		resolution.Status = current.Status
		resolution.CurrentDefense = current.CurrentDefense
		resolution.ResolvedAt = current.ResolvedAt
		resolution.Outcome = domain.OutcomeAlreadyResolved
		return resolution, nil
	}

	resolvedAt := now
	resolution.Status = next
	resolution.ResolvedAt = &resolvedAt
	resolution.Outcome = domain.OutcomeResolved
	if next == domain.StatusAttackerWin {
		if err := recordTransferTx(ctx, tx, battle, now); err != nil {
			return domain.Resolution{}, err
		}
		resolution.RegionTransferred = true
	}
	return resolution, nil
}

func recordTransferTx(ctx context.Context, tx *sql.Tx, battle domain.Battle, at time.Time) error {
	var previous sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT owner_faction_id FROM regions WHERE region_key = ?`, battle.RegionKey).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load region owner: %w", err)
	}
	if err := transferRegionTx(ctx, tx, battle.RegionKey, battle.AttackerFactionID, at); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO territory_transfers (battle_id, region_key, previous_owner, new_owner, transferred_at)
VALUES (?, ?, ?, ?, ?)
`, battle.ID, battle.RegionKey, previous, battle.AttackerFactionID, sqliteconn.ToMillis(at)); err != nil {
		if sqliteconn.IsUniqueConstraint(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("record territory transfer: %w", err)
	}
	return nil
}

// ListExpiredActiveBattles returns active battles whose deadline is at or
// before now, oldest deadline first.
func (s *Store) ListExpiredActiveBattles(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return queryIDs(ctx, s.sqlDB, `
SELECT id FROM battles
WHERE status = 'active' AND ends_at <= ?
ORDER BY ends_at, id
LIMIT ?
`, sqliteconn.ToMillis(now), limit)
}

// ListPendingRankings returns terminal battles whose rankings pass has not run.
func (s *Store) ListPendingRankings(ctx context.Context, limit int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return queryIDs(ctx, s.sqlDB, `
SELECT id FROM battles
WHERE status != 'active' AND rankings_processed_at IS NULL
ORDER BY resolved_at, id
LIMIT ?
`, limit)
}

func queryIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// ListCombatLog returns the most recent strikes of a battle, newest first.
func (s *Store) ListCombatLog(ctx context.Context, battleID string, limit int) ([]storage.CombatLogEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, battle_id, user_id, side, damage, defense_after, created_at
FROM combat_log
WHERE battle_id = ?
ORDER BY id DESC
LIMIT ?
`, strings.TrimSpace(battleID), limit)
	if err != nil {
		return nil, fmt.Errorf("list combat log: %w", err)
	}
	defer rows.Close()

	var entries []storage.CombatLogEntry
	for rows.Next() {
		var (
			entry     storage.CombatLogEntry
			side      string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.BattleID, &entry.UserID, &side, &entry.Damage, &entry.DefenseAfter, &createdAt); err != nil {
			return nil, fmt.Errorf("scan combat log: %w", err)
		}
		entry.Side = domain.Side(side)
		entry.CreatedAt = sqliteconn.FromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate combat log: %w", err)
	}
	return entries, nil
}
