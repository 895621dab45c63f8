// Package storage defines persistence contracts for battles, participation
// and the supporting identity, membership and medal records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
)

var (
	// ErrNotFound indicates a requested battle or region is missing.
	ErrNotFound = errors.New("record not found")
	// ErrUserNotFound indicates the referenced user was never provisioned.
	ErrUserNotFound = errors.New("user not found")
	// ErrConflict indicates a write conflicts with a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrAlreadyResolved indicates a strike against a battle that is no longer active.
	ErrAlreadyResolved = errors.New("battle already resolved")
	// ErrSideMismatch indicates a user striking for the side they did not join.
	ErrSideMismatch = errors.New("participant side mismatch")
)

// Role is a faction membership role.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleOfficer Role = "officer"
	RoleMember  Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleLeader || r == RoleOfficer || r == RoleMember
}

// CanDeclareBattle reports whether r may start battles for its faction.
func (r Role) CanDeclareBattle() bool {
	return r == RoleLeader || r == RoleOfficer
}

// Membership ties one user to one faction.
type Membership struct {
	FactionID string
	UserID    string
	Role      Role
	JoinedAt  time.Time
}

// AttackRecord is one strike to apply atomically.
type AttackRecord struct {
	BattleID string
	UserID   string
	Strike   domain.Strike
	At       time.Time
}

// AttackOutcome is the committed state after a strike.
type AttackOutcome struct {
	Battle        domain.Battle
	Participation domain.Participation
	Stats         domain.UserStats
	Resolution    domain.Resolution
}

// ParticipationRecord credits damage to a user in a battle without touching
// the battle's defense.
type ParticipationRecord struct {
	BattleID string
	UserID   string
	Side     domain.Side
	Damage   int64
	At       time.Time
}

// RankingsResult reports one win/loss aggregation pass.
type RankingsResult struct {
	// Processed is false when another pass already claimed the battle or the
	// battle is still active.
	Processed bool
	HeroID    string
	Updated   []domain.UserStats
}

// CombatLogEntry is one recorded strike.
type CombatLogEntry struct {
	ID           int64
	BattleID     string
	UserID       string
	Side         domain.Side
	Damage       int64
	DefenseAfter int64
	CreatedAt    time.Time
}

// BattleStore persists battles and applies state transitions.
type BattleStore interface {
	CreateBattle(ctx context.Context, battle domain.Battle) error
	GetBattle(ctx context.Context, battleID string) (domain.Battle, error)
	ApplyAttack(ctx context.Context, record AttackRecord) (AttackOutcome, error)
	ResolveBattle(ctx context.Context, battleID string, now time.Time) (domain.Resolution, error)
	ProcessRankings(ctx context.Context, battleID string, now time.Time) (RankingsResult, error)
	ListExpiredActiveBattles(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListPendingRankings(ctx context.Context, limit int) ([]string, error)
	ListCombatLog(ctx context.Context, battleID string, limit int) ([]CombatLogEntry, error)
}

// RegionStore persists region ownership.
type RegionStore interface {
	GetRegion(ctx context.Context, regionKey string) (domain.Region, error)
	TransferRegion(ctx context.Context, regionKey string, newOwnerFactionID string, at time.Time) error
}

// StatsStore persists participation and per-user aggregates.
type StatsStore interface {
	RecordParticipation(ctx context.Context, record ParticipationRecord) (domain.UserStats, error)
	GetUserStats(ctx context.Context, userID string) (domain.UserStats, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	ListParticipationHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
	PutUserStats(ctx context.Context, stats domain.UserStats) error
}

// IdentityStore maps authenticated subjects to user ids.
type IdentityStore interface {
	EnsureUser(ctx context.Context, subject string, candidateID string, now time.Time) (string, error)
}

// MembershipStore persists faction membership.
type MembershipStore interface {
	GetMembership(ctx context.Context, userID string) (Membership, error)
	ListFactionMembers(ctx context.Context, factionID string) ([]Membership, error)
	PutMembership(ctx context.Context, membership Membership) error
}

// MedalStore persists medal counts.
type MedalStore interface {
	MedalCount(ctx context.Context, userID string) (int64, error)
}
