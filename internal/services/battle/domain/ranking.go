package domain

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RankTierCount is the number of tiers every rank table carries.
const RankTierCount = 16

// Score weights per aggregate.
const (
	weightBattleWon    = 1000
	weightMedal        = 2500
	weightWinStreak    = 500
	weightBattleFought = 100
)

//go:embed ranks.yaml
var defaultRanksYAML []byte

// StatsInput are the aggregates a rank score is derived from.
type StatsInput struct {
	TotalDamage   int64
	BattlesWon    int64
	Medals        int64
	WinStreak     int64
	BattlesFought int64
}

// RankScore derives a rank score from aggregates. It is non-decreasing in
// every input; negative inputs count as zero and the sum saturates.
func RankScore(in StatsInput) int64 {
	var score int64
	score = addSaturating(score, nonNegative(in.TotalDamage))
	score = addSaturating(score, mulSaturating(nonNegative(in.BattlesWon), weightBattleWon))
	score = addSaturating(score, mulSaturating(nonNegative(in.Medals), weightMedal))
	score = addSaturating(score, mulSaturating(nonNegative(in.WinStreak), weightWinStreak))
	score = addSaturating(score, mulSaturating(nonNegative(in.BattlesFought), weightBattleFought))
	return score
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func addSaturating(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func mulSaturating(v, factor int64) int64 {
	if v > math.MaxInt64/factor {
		return math.MaxInt64
	}
	return v * factor
}

// RankTier is one row of the rank table.
type RankTier struct {
	Name               string `yaml:"name"`
	MinScore           int64  `yaml:"min_score"`
	DamageBonusPercent int    `yaml:"damage_bonus_percent"`
}

// RankTable maps rank scores to tiers.
type RankTable struct {
	tiers []RankTier
}

type rankFile struct {
	Tiers []RankTier `yaml:"tiers"`
}

// DefaultRankTable returns the table shipped with the binary.
func DefaultRankTable() RankTable {
	table, err := ParseRankTable(defaultRanksYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rank table: %v", err))
	}
	return table
}

// LoadRankTable reads a rank table from path. An empty path returns the
// default table.
func LoadRankTable(path string) (RankTable, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRankTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RankTable{}, fmt.Errorf("read rank table: %w", err)
	}
	return ParseRankTable(data)
}

// ParseRankTable decodes and validates a YAML rank table.
func ParseRankTable(data []byte) (RankTable, error) {
	var file rankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return RankTable{}, fmt.Errorf("decode rank table: %w", err)
	}
	if len(file.Tiers) != RankTierCount {
		return RankTable{}, fmt.Errorf("rank table has %d tiers, want %d", len(file.Tiers), RankTierCount)
	}
	for i, tier := range file.Tiers {
		if strings.TrimSpace(tier.Name) == "" {
			return RankTable{}, fmt.Errorf("rank tier %d has no name", i)
		}
		if tier.DamageBonusPercent <= 0 {
			return RankTable{}, fmt.Errorf("rank tier %q damage bonus must be positive", tier.Name)
		}
		if i == 0 {
			if tier.MinScore != 0 {
				return RankTable{}, fmt.Errorf("first rank tier must start at 0, got %d", tier.MinScore)
			}
			continue
		}
		if tier.MinScore <= file.Tiers[i-1].MinScore {
			return RankTable{}, fmt.Errorf("rank tier %q min score %d is not above %d", tier.Name, tier.MinScore, file.Tiers[i-1].MinScore)
		}
	}
	return RankTable{tiers: file.Tiers}, nil
}

// Tiers returns a copy of the ordered tiers.
func (t RankTable) Tiers() []RankTier {
	return append([]RankTier(nil), t.tiers...)
}

// Tier returns the highest tier whose minimum score is at most score.
func (t RankTable) Tier(score int64) RankTier {
	if len(t.tiers) == 0 {
		return RankTier{}
	}
	found := t.tiers[0]
	for _, tier := range t.tiers[1:] {
		if score < tier.MinScore {
			break
		}
		found = tier
	}
	return found
}

// Label returns the tier name for score.
func (t RankTable) Label(score int64) string {
	return t.Tier(score).Name
}
