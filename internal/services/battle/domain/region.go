package domain

import (
	"strings"
	"time"
)

const (
	// BaselineFortification is the fortification a region has after capture.
	BaselineFortification = 1
	// DefensePerFortification scales fortification into a starting wall.
	DefensePerFortification = 10000
	// DefaultBattleDuration is used when a battle is created without one.
	DefaultBattleDuration = 2 * time.Hour
	// MaxInitialDefense bounds caller-supplied starting walls.
	MaxInitialDefense = 1_000_000_000_000
	// MaxBattleDuration bounds caller-supplied durations.
	MaxBattleDuration = 7 * 24 * time.Hour

	maxRegionKeyLength = 64
)

// Region is a map cell identified by its hex key.
type Region struct {
	Key                string
	OwnerFactionID     string
	FortificationLevel int64
	LastConqueredAt    *time.Time
	UpdatedAt          time.Time
}

// DefaultDefense is the starting wall for a battle over r.
func (r Region) DefaultDefense() int64 {
	level := r.FortificationLevel
	if level < BaselineFortification {
		level = BaselineFortification
	}
	return level * DefensePerFortification
}

// NormalizeRegionKey trims and lower-cases a hex region key.
func NormalizeRegionKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", invalidInput("region_key", "region key is required")
	}
	if len(key) > maxRegionKeyLength {
		return "", invalidInput("region_key", "region key is too long")
	}
	for _, r := range key {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || r == '-' || r == '_' {
			continue
		}
		return "", invalidInput("region_key", "region key has invalid characters")
	}
	return key, nil
}

// CreateParams describe a new battle before defaults are applied.
type CreateParams struct {
	RegionKey         string
	AttackerFactionID string
	InitialDefense    int64
	Duration          time.Duration
}

// NewBattle builds an active battle over region from params.
func NewBattle(id string, region Region, params CreateParams, now time.Time) (Battle, error) {
	attacker := strings.TrimSpace(params.AttackerFactionID)
	if attacker == "" {
		return Battle{}, invalidInput("attacker_faction_id", "attacker faction is required")
	}
	if attacker == region.OwnerFactionID {
		return Battle{}, invalidInput("attacker_faction_id", "faction already owns the region")
	}
	initial := params.InitialDefense
	if initial < 0 || initial > MaxInitialDefense {
		return Battle{}, invalidInput("initial_defense", "initial defense is out of range")
	}
	if initial == 0 {
		initial = region.DefaultDefense()
	}
	duration := params.Duration
	if duration < 0 || duration > MaxBattleDuration {
		return Battle{}, invalidInput("duration", "duration is out of range")
	}
	if duration == 0 {
		duration = DefaultBattleDuration
	}
	now = now.UTC()
	return Battle{
		ID:                id,
		RegionKey:         region.Key,
		AttackerFactionID: attacker,
		DefenderFactionID: region.OwnerFactionID,
		CurrentDefense:    initial,
		InitialDefense:    initial,
		StartedAt:         now,
		EndsAt:            now.Add(duration),
		Status:            StatusActive,
	}, nil
}
