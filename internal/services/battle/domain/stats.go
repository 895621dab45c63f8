package domain

import (
	"sort"
	"time"
)

// MedalBattleHero is awarded to the top damage dealer of the winning side.
const MedalBattleHero = "battle_hero"

// Participation is one user's accumulated contribution to one battle.
type Participation struct {
	BattleID      string
	UserID        string
	Side          Side
	DamageDealt   int64
	Strikes       int64
	Won           *bool
	FirstStrikeAt time.Time
	LastStrikeAt  time.Time
}

// UserStats are the per-user aggregates across battles.
type UserStats struct {
	UserID              string
	TotalDamageDealt    int64
	BattlesFought       int64
	BattlesWon          int64
	HighestDamageBattle int64
	WinStreak           int64
	LastBattleWin       *bool
	CurrentRank         string
	RankScore           int64
	UpdatedAt           time.Time
}

// Input returns the ranking inputs for s with the given medal count.
func (s UserStats) Input(medals int64) StatsInput {
	return StatsInput{
		TotalDamage:   s.TotalDamageDealt,
		BattlesWon:    s.BattlesWon,
		Medals:        medals,
		WinStreak:     s.WinStreak,
		BattlesFought: s.BattlesFought,
	}
}

// Ranked returns s with score and label recomputed.
func (s UserStats) Ranked(table RankTable, medals int64) UserStats {
	s.RankScore = RankScore(s.Input(medals))
	s.CurrentRank = table.Label(s.RankScore)
	return s
}

// AddDamage accumulates one strike's damage. newBattle marks the first
// strike of this user in the battle; battleDamage is the user's running total
// for the battle after the strike.
func (s UserStats) AddDamage(damage int64, battleDamage int64, newBattle bool) UserStats {
	s.TotalDamageDealt = addSaturating(s.TotalDamageDealt, nonNegative(damage))
	if newBattle {
		s.BattlesFought++
	}
	if battleDamage > s.HighestDamageBattle {
		s.HighestDamageBattle = battleDamage
	}
	return s
}

// ApplyOutcome records a finished battle for s.
func (s UserStats) ApplyOutcome(won bool) UserStats {
	if won {
		s.BattlesWon++
		s.WinStreak++
	} else {
		s.WinStreak = 0
	}
	s.LastBattleWin = &won
	return s
}

// Won reports whether side won a battle that ended with status.
func Won(side Side, status Status) (bool, bool) {
	winner, ok := status.Winner()
	if !ok {
		return false, false
	}
	return side == winner, true
}

// BattleHero picks the top damage dealer on the winning side. Ties go to the
// earliest first strike, then the lowest user id.
func BattleHero(status Status, participants []Participation) (string, bool) {
	winner, ok := status.Winner()
	if !ok {
		return "", false
	}
	var best *Participation
	for i := range participants {
		p := &participants[i]
		if p.Side != winner || p.DamageDealt <= 0 {
			continue
		}
		if best == nil || heroBefore(p, best) {
			best = p
		}
	}
	if best == nil {
		return "", false
	}
	return best.UserID, true
}

func heroBefore(a, b *Participation) bool {
	if a.DamageDealt != b.DamageDealt {
		return a.DamageDealt > b.DamageDealt
	}
	if !a.FirstStrikeAt.Equal(b.FirstStrikeAt) {
		return a.FirstStrikeAt.Before(b.FirstStrikeAt)
	}
	return a.UserID < b.UserID
}

// HistoryEntry is a participation joined with its battle outcome.
type HistoryEntry struct {
	Participation
	Status     Status
	ResolvedAt *time.Time
	// Processed is true once win/loss aggregation ran for the battle.
	Processed bool
}

// RebuildStats recomputes a user's aggregates from participation history.
// Win/loss only counts for battles whose rankings were processed, in
// resolution order, matching what incremental updates produce.
func RebuildStats(userID string, history []HistoryEntry, medals int64, table RankTable, now time.Time) UserStats {
	stats := UserStats{UserID: userID}
	seen := make(map[string]struct{}, len(history))
	var finished []HistoryEntry
	for _, entry := range history {
		if entry.UserID != userID {
			continue
		}
		if _, dup := seen[entry.BattleID]; dup {
			continue
		}
		seen[entry.BattleID] = struct{}{}
		stats = stats.AddDamage(entry.DamageDealt, entry.DamageDealt, true)
		if entry.Processed && entry.Status.Terminal() {
			finished = append(finished, entry)
		}
	}
	sort.SliceStable(finished, func(i, j int) bool {
		return resolvedMillis(finished[i]) < resolvedMillis(finished[j])
	})
	for _, entry := range finished {
		won, _ := Won(entry.Side, entry.Status)
		stats = stats.ApplyOutcome(won)
	}
	stats.UpdatedAt = now
	return stats.Ranked(table, medals)
}

func resolvedMillis(entry HistoryEntry) int64 {
	if entry.ResolvedAt == nil {
		return 0
	}
	return entry.ResolvedAt.UnixMilli()
}
