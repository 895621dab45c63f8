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

const participantColumns = `battle_id, user_id, side, damage_dealt, strikes, won, first_strike_at, last_strike_at`

const statsColumns = `user_id, total_damage_dealt, battles_fought, battles_won, highest_damage_battle,
win_streak, last_battle_win, current_rank, rank_score, updated_at`

// upsertParticipationTx credits damage to (battle, user). isNew reports
// whether this call created the row, which is the only time battles_fought
// may grow.
func upsertParticipationTx(ctx context.Context, tx *sql.Tx, battleID, userID string, side domain.Side, damage int64, at time.Time) (domain.Participation, bool, error) {
	atMillis := sqliteconn.ToMillis(at)
	result, err := tx.ExecContext(ctx, `
INSERT INTO participants (battle_id, user_id, side, damage_dealt, strikes, first_strike_at, last_strike_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(battle_id, user_id) DO NOTHING
`, battleID, userID, string(side), damage, atMillis, atMillis)
	if err != nil {
		return domain.Participation{}, false, fmt.Errorf("insert participant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Participation{}, false, fmt.Errorf("insert participant rows affected: %w", err)
	}
	if affected == 1 {
		return domain.Participation{
			BattleID:      battleID,
			UserID:        userID,
			Side:          side,
			DamageDealt:   damage,
			Strikes:       1,
			FirstStrikeAt: at,
			LastStrikeAt:  at,
		}, true, nil
	}

	row := tx.QueryRowContext(ctx, `
UPDATE participants
SET damage_dealt = damage_dealt + ?,
    strikes = strikes + 1,
    last_strike_at = MAX(last_strike_at, ?)
WHERE battle_id = ? AND user_id = ? AND side = ?
RETURNING `+participantColumns,
		damage, atMillis, battleID, userID, string(side))
	participation, err := scanParticipation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Participation{}, false, storage.ErrSideMismatch
		}
		return domain.Participation{}, false, fmt.Errorf("update participant: %w", err)
	}
	return participation, false, nil
}

func scanParticipation(scan func(dest ...any) error) (domain.Participation, error) {
	var (
		p     domain.Participation
		side  string
		won   sql.NullBool
		first int64
		last  int64
	)
	if err := scan(&p.BattleID, &p.UserID, &side, &p.DamageDealt, &p.Strikes, &won, &first, &last); err != nil {
		return domain.Participation{}, err
	}
	p.Side = domain.Side(side)
	p.Won = boolPtr(won)
	p.FirstStrikeAt = sqliteconn.FromMillis(first)
	p.LastStrikeAt = sqliteconn.FromMillis(last)
	return p, nil
}

func listParticipantsTx(ctx context.Context, q queryer, battleID string) ([]domain.Participation, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE battle_id = ? ORDER BY user_id`, battleID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var participants []domain.Participation
	for rows.Next() {
		p, err := scanParticipation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

func (s *Store) accumulateStatsTx(ctx context.Context, tx *sql.Tx, userID string, damage, battleDamage int64, newBattle bool, at time.Time) (domain.UserStats, error) {
	stats, err := loadStatsTx(ctx, tx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	stats = stats.AddDamage(damage, battleDamage, newBattle)
	return s.rerankAndPutTx(ctx, tx, stats, at)
}

func (s *Store) rerankAndPutTx(ctx context.Context, tx *sql.Tx, stats domain.UserStats, at time.Time) (domain.UserStats, error) {
	medals, err := medalCount(ctx, tx, stats.UserID)
	if err != nil {
		return domain.UserStats{}, err
	}
	stats = stats.Ranked(s.rankTable, medals)
	stats.UpdatedAt = at
	if err := putStats(ctx, tx, stats); err != nil {
		return domain.UserStats{}, err
	}
	return stats, nil
}

func loadStatsTx(ctx context.Context, q queryer, userID string) (domain.UserStats, error) {
	row := q.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE user_id = ?`, userID)
	stats, err := scanStats(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("load user stats: %w", err)
	}
	return stats, nil
}

func scanStats(scan func(dest ...any) error) (domain.UserStats, error) {
	var (
		stats     domain.UserStats
		lastWin   sql.NullBool
		updatedAt int64
	)
	if err := scan(
		&stats.UserID,
		&stats.TotalDamageDealt,
		&stats.BattlesFought,
		&stats.BattlesWon,
		&stats.HighestDamageBattle,
		&stats.WinStreak,
		&lastWin,
		&stats.CurrentRank,
		&stats.RankScore,
		&updatedAt,
	); err != nil {
		return domain.UserStats{}, err
	}
	stats.LastBattleWin = boolPtr(lastWin)
	stats.UpdatedAt = sqliteconn.FromMillis(updatedAt)
	return stats, nil
}

func putStats(ctx context.Context, q queryer, stats domain.UserStats) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO user_stats (`+statsColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    total_damage_dealt = excluded.total_damage_dealt,
    battles_fought = excluded.battles_fought,
    battles_won = excluded.battles_won,
    highest_damage_battle = excluded.highest_damage_battle,
    win_streak = excluded.win_streak,
    last_battle_win = excluded.last_battle_win,
    current_rank = excluded.current_rank,
    rank_score = excluded.rank_score,
    updated_at = excluded.updated_at
`,
		stats.UserID,
		stats.TotalDamageDealt,
		stats.BattlesFought,
		stats.BattlesWon,
		stats.HighestDamageBattle,
		stats.WinStreak,
		nullBool(stats.LastBattleWin),
		stats.CurrentRank,
		stats.RankScore,
		sqliteconn.ToMillis(stats.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user stats: %w", err)
	}
	return nil
}

// RecordParticipation credits damage to a user in a battle outside the attack
// path, for backfill and replay. When the battle's rankings already ran, the
// outcome is applied to a first-time participant immediately.
func (s *Store) RecordParticipation(ctx context.Context, record storage.ParticipationRecord) (domain.UserStats, error) {
	if err := s.ready(ctx); err != nil {
		return domain.UserStats{}, err
	}
	if err := (domain.Strike{Side: record.Side, Damage: record.Damage}).Validate(); err != nil {
		return domain.UserStats{}, err
	}
	battleID := strings.TrimSpace(record.BattleID)
	userID := strings.TrimSpace(record.UserID)
	if record.At.IsZero() {
		return domain.UserStats{}, fmt.Errorf("participation time is required")
	}
	at := record.At.UTC()

	var stats domain.UserStats
	err := sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		battle, err := getBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		participation, isNew, err := upsertParticipationTx(ctx, tx, battleID, userID, record.Side, record.Damage, at)
		if err != nil {
			return err
		}
		current, err := loadStatsTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		current = current.AddDamage(record.Damage, participation.DamageDealt, isNew)
		if isNew && battle.RankingsProcessedAt != nil {
			won, _ := domain.Won(record.Side, battle.Status)
			if err := markWonTx(ctx, tx, battleID, userID, won); err != nil {
				return err
			}
			current = current.ApplyOutcome(won)
		}
		stats, err = s.rerankAndPutTx(ctx, tx, current, at)
		return err
	})
	if err != nil {
		return domain.UserStats{}, err
	}
	return stats, nil
}

func markWonTx(ctx context.Context, tx *sql.Tx, battleID, userID string, won bool) error {
	if _, err := tx.ExecContext(ctx, `UPDATE participants SET won = ? WHERE battle_id = ? AND user_id = ?`, won, battleID, userID); err != nil {
		return fmt.Errorf("mark participant outcome: %w", err)
	}
	return nil
}

// ProcessRankings applies win/loss aggregation for a terminal battle at most
// once. The pass claims rankings_processed_at before touching any stats, so a
// concurrent or repeated call observes Processed == false.
func (s *Store) ProcessRankings(ctx context.Context, battleID string, now time.Time) (storage.RankingsResult, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RankingsResult{}, err
	}
	battleID = strings.TrimSpace(battleID)
	now = now.UTC()

	var result storage.RankingsResult
	err := sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		result = storage.RankingsResult{}
		claim, err := tx.ExecContext(ctx, `
UPDATE battles SET rankings_processed_at = ?
WHERE id = ? AND status != 'active' AND rankings_processed_at IS NULL
`, sqliteconn.ToMillis(now), battleID)
		if err != nil {
			return fmt.Errorf("claim rankings: %w", err)
		}
		affected, err := claim.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rankings rows affected: %w", err)
		}
		battle, err := getBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		participants, err := listParticipantsTx(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if hero, ok := domain.BattleHero(battle.Status, participants); ok {
			if err := awardMedalTx(ctx, tx, hero, domain.MedalBattleHero, now); err != nil {
				return err
			}
			result.HeroID = hero
		}
		for _, p := range participants {
			won, _ := domain.Won(p.Side, battle.Status)
			if err := markWonTx(ctx, tx, battleID, p.UserID, won); err != nil {
				return err
			}
			stats, err := loadStatsTx(ctx, tx, p.UserID)
			if err != nil {
				return err
			}
			stats, err = s.rerankAndPutTx(ctx, tx, stats.ApplyOutcome(won), now)
			if err != nil {
				return err
			}
			result.Updated = append(result.Updated, stats)
		}
		result.Processed = true
		return nil
	})
	if err != nil {
		return storage.RankingsResult{}, err
	}
	return result, nil
}

// GetUserStats loads a user's aggregates. A provisioned user without any
// participation reports zeroed stats at the lowest rank.
func (s *Store) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	if err := s.ready(ctx); err != nil {
		return domain.UserStats{}, err
	}
	userID = strings.TrimSpace(userID)
	if err := requireUser(ctx, s.sqlDB, userID); err != nil {
		return domain.UserStats{}, err
	}
	stats, err := loadStatsTx(ctx, s.sqlDB, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	if stats.CurrentRank == "" {
		stats.CurrentRank = s.rankTable.Label(stats.RankScore)
	}
	return stats, nil
}

// ListUserIDs returns every provisioned user id.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return queryIDs(ctx, s.sqlDB, `SELECT id FROM users ORDER BY id`)
}

// ListParticipationHistory returns a user's participations joined with their
// battle outcomes.
func (s *Store) ListParticipationHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT p.battle_id, p.user_id, p.side, p.damage_dealt, p.strikes, p.won, p.first_strike_at, p.last_strike_at,
       b.status, b.resolved_at, b.rankings_processed_at IS NOT NULL
FROM participants p
JOIN battles b ON b.id = p.battle_id
WHERE p.user_id = ?
ORDER BY p.first_strike_at, p.battle_id
`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list participation history: %w", err)
	}
	defer rows.Close()

	var history []domain.HistoryEntry
	for rows.Next() {
		var (
			entry      domain.HistoryEntry
			status     string
			resolvedAt sql.NullInt64
		)
		p, err := scanParticipation(func(dest ...any) error {
			return rows.Scan(append(dest, &status, &resolvedAt, &entry.Processed)...)
		})
		if err != nil {
			return nil, fmt.Errorf("scan participation history: %w", err)
		}
		entry.Participation = p
		entry.Status = domain.Status(status)
		entry.ResolvedAt = sqliteconn.TimePtr(resolvedAt)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participation history: %w", err)
	}
	return history, nil
}

// PutUserStats replaces a user's aggregates.
func (s *Store) PutUserStats(ctx context.Context, stats domain.UserStats) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(stats.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	return putStats(ctx, s.sqlDB, stats)
}
