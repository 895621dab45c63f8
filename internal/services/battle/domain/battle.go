// Package domain models battles over regions: the defense ledger, the
// resolution state machine and the ranking rules applied to participants.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a battle.
type Status string

const (
	StatusActive      Status = "active"
	StatusAttackerWin Status = "attacker_win"
	StatusDefenderWin Status = "defender_win"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusAttackerWin || s == StatusDefenderWin
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s.Terminal()
}

// Winner returns the winning side of a terminal status.
func (s Status) Winner() (Side, bool) {
	switch s {
	case StatusAttackerWin:
		return SideAttacker, true
	case StatusDefenderWin:
		return SideDefender, true
	default:
		return "", false
	}
}

// Side is the faction side a strike is applied for.
type Side string

const (
	SideAttacker Side = "attacker"
	SideDefender Side = "defender"
)

// ParseSide normalizes a caller-supplied side.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideAttacker:
		return SideAttacker, nil
	case SideDefender:
		return SideDefender, nil
	default:
		return "", invalidInput("side", "side must be attacker or defender")
	}
}

// Battle is the aggregate mutated by strikes and resolution.
type Battle struct {
	ID                  string
	RegionKey           string
	AttackerFactionID   string
	DefenderFactionID   string
	CurrentDefense      int64
	InitialDefense      int64
	AttackerScore       int64
	DefenderScore       int64
	StartedAt           time.Time
	EndsAt              time.Time
	Status              Status
	ResolvedAt          *time.Time
	RankingsProcessedAt *time.Time
}

// MaxStrikeDamage bounds the damage of a single strike.
const MaxStrikeDamage = 1_000_000

// Strike is one attack applied to a battle's wall.
type Strike struct {
	Side   Side
	Damage int64
}

// Validate rejects strikes that must not reach storage.
func (s Strike) Validate() error {
	if s.Side != SideAttacker && s.Side != SideDefender {
		return invalidInput("side", "side must be attacker or defender")
	}
	if s.Damage <= 0 {
		return invalidInput("damage", "damage must be positive")
	}
	if s.Damage > MaxStrikeDamage {
		return invalidInput("damage", fmt.Sprintf("damage must not exceed %d", MaxStrikeDamage))
	}
	return nil
}

// DefenseDelta is the signed change a strike applies to the wall.
func (s Strike) DefenseDelta() int64 {
	if s.Side == SideDefender {
		return s.Damage
	}
	return -s.Damage
}

// ApplyStrike returns b with the strike's effect on defense and scores.
// Defense stays within [0, InitialDefense].
func (b Battle) ApplyStrike(s Strike) Battle {
	b.CurrentDefense = ClampDefense(b.CurrentDefense+s.DefenseDelta(), b.InitialDefense)
	switch s.Side {
	case SideAttacker:
		b.AttackerScore += s.Damage
	case SideDefender:
		b.DefenderScore += s.Damage
	}
	return b
}

// ClampDefense bounds value to [0, initial].
func ClampDefense(value int64, initial int64) int64 {
	if value < 0 {
		return 0
	}
	if value > initial {
		return initial
	}
	return value
}

// Resolve decides the status b should have at now.
//
// A depleted wall wins for the attacker even past the deadline; otherwise the
// defender wins once now reaches EndsAt. Terminal battles keep their status.
func Resolve(b Battle, now time.Time) Status {
	if b.Status.Terminal() {
		return b.Status
	}
	if b.CurrentDefense <= 0 {
		return StatusAttackerWin
	}
	if !now.Before(b.EndsAt) {
		return StatusDefenderWin
	}
	return StatusActive
}

// ResolutionOutcome tags what a resolution call observed.
type ResolutionOutcome string

const (
	// OutcomeStillActive means no terminal condition holds yet.
	OutcomeStillActive ResolutionOutcome = "still_active"
	// OutcomeResolved means this call performed the terminal transition.
	OutcomeResolved ResolutionOutcome = "resolved"
	// OutcomeAlreadyResolved means the battle was terminal before this call.
	OutcomeAlreadyResolved ResolutionOutcome = "already_resolved"
)

// Resolution is the result of a resolution check.
type Resolution struct {
	BattleID          string
	Status            Status
	CurrentDefense    int64
	Outcome           ResolutionOutcome
	RegionTransferred bool
	ResolvedAt        *time.Time
}

// Transitioned reports whether this call moved the battle to a terminal state.
func (r Resolution) Transitioned() bool {
	return r.Outcome == OutcomeResolved
}
