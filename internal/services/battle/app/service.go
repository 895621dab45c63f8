// Package app orchestrates battle use-cases over storage and exposes them
// over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/id"
	"github.com/louisbranch/conquest.space/internal/platform/requestctx"
	"github.com/louisbranch/conquest.space/internal/platform/timeouts"
	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/journal"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/conquest.space/internal/platform/errors"
)

const (
	defaultSweepBatchSize = 100
	recentStrikeLimit     = 20
)

var tracer = otel.Tracer("github.com/louisbranch/conquest.space/internal/services/battle/app")

// Store is the persistence the service needs.
type Store interface {
	storage.BattleStore
	storage.RegionStore
	storage.StatsStore
	storage.IdentityStore
	storage.MembershipStore
	storage.MedalStore
}

// Notifier announces new battles. Implementations must tolerate repeats.
type Notifier interface {
	BattleStarted(ctx context.Context, battle domain.Battle) error
}

// OutcomeJournal records terminal transitions.
type OutcomeJournal interface {
	Append(entry journal.Entry) error
}

// Config tunes the service.
type Config struct {
	SweepBatchSize int
}

// Service implements battle use-cases.
type Service struct {
	store    Store
	notifier Notifier
	journal  OutcomeJournal
	cfg      Config
	clock    func() time.Time
	newID    func() (string, error)
	logf     func(string, ...any)
	// async runs post-commit work detached from the request.
	async func(func())
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the battle-started notifier.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithJournal sets the outcome journal.
func WithJournal(j OutcomeJournal) Option {
	return func(s *Service) { s.journal = j }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logf func(string, ...any)) Option {
	return func(s *Service) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// WithAsync overrides how post-commit work is scheduled.
func WithAsync(async func(func())) Option {
	return func(s *Service) {
		if async != nil {
			s.async = async
		}
	}
}

// NewService builds a battle service.
func NewService(store Store, cfg Config, opts ...Option) *Service {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaultSweepBatchSize
	}
	s := &Service{
		store: store,
		cfg:   cfg,
		clock: time.Now,
		newID: id.NewID,
		logf:  log.Printf,
		async: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// actor resolves the calling user, provisioning it from the token subject on
// first sight.
func (s *Service) actor(ctx context.Context) (string, error) {
	if userID := requestctx.UserIDFromContext(ctx); userID != "" {
		return userID, nil
	}
	subject := requestctx.SubjectFromContext(ctx)
	if subject == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "missing authenticated subject")
	}
	candidate, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	userID, err := s.store.EnsureUser(ctx, subject, candidate, s.now())
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	return userID, nil
}

// CreateBattleInput declares a battle over a region.
type CreateBattleInput struct {
	RegionKey         string
	AttackerFactionID string
	InitialDefense    int64
	Duration          time.Duration
}

// CreateBattle starts a battle. The caller must lead or officer the attacking
// faction. Defenders are notified after commit without blocking the caller.
func (s *Service) CreateBattle(ctx context.Context, input CreateBattleInput) (domain.Battle, error) {
	ctx, span := tracer.Start(ctx, "battle.create")
	defer span.End()

	regionKey, err := domain.NormalizeRegionKey(input.RegionKey)
	if err != nil {
		return domain.Battle{}, err
	}
	actorID, err := s.actor(ctx)
	if err != nil {
		return domain.Battle{}, recordSpanError(span, err)
	}
	membership, err := s.store.GetMembership(ctx, actorID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return domain.Battle{}, recordSpanError(span, fmt.Errorf("load membership: %w", err))
	}
	attacker := strings.TrimSpace(input.AttackerFactionID)
	if err != nil || membership.FactionID != attacker || !membership.Role.CanDeclareBattle() {
		return domain.Battle{}, apperrors.New(apperrors.CodeForbidden, "only faction leaders and officers may declare battles")
	}

	region, err := s.store.GetRegion(ctx, regionKey)
	if errors.Is(err, storage.ErrNotFound) {
		region = domain.Region{Key: regionKey, FortificationLevel: domain.BaselineFortification}
	} else if err != nil {
		return domain.Battle{}, recordSpanError(span, fmt.Errorf("load region: %w", err))
	}

	battleID, err := s.newID()
	if err != nil {
		return domain.Battle{}, recordSpanError(span, fmt.Errorf("generate battle id: %w", err))
	}
	battle, err := domain.NewBattle(battleID, region, domain.CreateParams{
		RegionKey:         regionKey,
		AttackerFactionID: attacker,
		InitialDefense:    input.InitialDefense,
		Duration:          input.Duration,
	}, s.now())
	if err != nil {
		return domain.Battle{}, err
	}
	if err := s.store.CreateBattle(ctx, battle); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.Battle{}, domain.ActiveBattleExists(regionKey)
		}
		return domain.Battle{}, recordSpanError(span, fmt.Errorf("create battle: %w", err))
	}
	span.SetAttributes(attribute.String("battle.id", battle.ID), attribute.String("region.key", regionKey))

	if s.notifier != nil {
		s.async(func() {
			fanoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Fanout)
			defer cancel()
			if err := s.notifier.BattleStarted(fanoutCtx, battle); err != nil {
				s.logf("notify battle %s started: %v", battle.ID, err)
			}
		})
	}
	return battle, nil
}

// BattleView is a battle with its most recent strikes.
type BattleView struct {
	Battle        domain.Battle
	RecentStrikes []storage.CombatLogEntry
}

// GetBattle loads a battle and its recent strikes.
func (s *Service) GetBattle(ctx context.Context, battleID string) (BattleView, error) {
	battleID = strings.TrimSpace(battleID)
	battle, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		return BattleView{}, mapStorageError(err, battleID)
	}
	strikes, err := s.store.ListCombatLog(ctx, battleID, recentStrikeLimit)
	if err != nil {
		return BattleView{}, fmt.Errorf("list combat log: %w", err)
	}
	return BattleView{Battle: battle, RecentStrikes: strikes}, nil
}

// AttackInput is one strike request.
type AttackInput struct {
	BattleID string
	Side     domain.Side
	Damage   int64
	// ActorID, when set, must match the authenticated user.
	ActorID string
}

// AttackResult is the battle state after a strike.
type AttackResult struct {
	BattleID       string
	CurrentDefense int64
	AttackerScore  int64
	DefenderScore  int64
	Status         domain.Status
	Outcome        domain.ResolutionOutcome
}

// Attack applies one strike atomically. A strike that depletes the wall
// resolves the battle and transfers the region before returning.
func (s *Service) Attack(ctx context.Context, input AttackInput) (AttackResult, error) {
	ctx, span := tracer.Start(ctx, "battle.attack", trace.WithAttributes(
		attribute.String("battle.id", input.BattleID),
		attribute.String("battle.side", string(input.Side)),
		attribute.Int64("battle.damage", input.Damage),
	))
	defer span.End()

	battleID := strings.TrimSpace(input.BattleID)
	if battleID == "" {
		return AttackResult{}, domain.InvalidInput("battle_id", "battle id is required")
	}
	strike := domain.Strike{Side: input.Side, Damage: input.Damage}
	if err := strike.Validate(); err != nil {
		return AttackResult{}, err
	}
	actorID, err := s.actor(ctx)
	if err != nil {
		return AttackResult{}, recordSpanError(span, err)
	}
	if claimed := strings.TrimSpace(input.ActorID); claimed != "" && claimed != actorID {
		return AttackResult{}, apperrors.New(apperrors.CodeUnauthorized, "actor does not match authenticated user")
	}

	battle, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		return AttackResult{}, mapStorageError(err, battleID)
	}
	if err := s.checkSide(ctx, actorID, battle, strike.Side); err != nil {
		return AttackResult{}, err
	}

	outcome, err := s.store.ApplyAttack(ctx, storage.AttackRecord{
		BattleID: battleID,
		UserID:   actorID,
		Strike:   strike,
		At:       s.now(),
	})
	if outcome.Resolution.Transitioned() {
		s.afterResolution(ctx, outcome.Resolution)
	}
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyResolved) {
			return AttackResult{}, domain.AlreadyResolved(battleID, outcome.Resolution.Status)
		}
		return AttackResult{}, recordSpanError(span, mapStorageError(err, battleID))
	}
	span.SetAttributes(attribute.Int64("battle.defense", outcome.Battle.CurrentDefense))
	return AttackResult{
		BattleID:       outcome.Battle.ID,
		CurrentDefense: outcome.Battle.CurrentDefense,
		AttackerScore:  outcome.Battle.AttackerScore,
		DefenderScore:  outcome.Battle.DefenderScore,
		Status:         outcome.Battle.Status,
		Outcome:        outcome.Resolution.Outcome,
	}, nil
}

func (s *Service) checkSide(ctx context.Context, userID string, battle domain.Battle, side domain.Side) error {
	membership, err := s.store.GetMembership(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	switch {
	case membership.FactionID == battle.AttackerFactionID && side != domain.SideAttacker:
		return apperrors.New(apperrors.CodeForbidden, "attacking faction members must strike as attacker")
	case battle.DefenderFactionID != "" && membership.FactionID == battle.DefenderFactionID && side != domain.SideDefender:
		return apperrors.New(apperrors.CodeForbidden, "defending faction members must strike as defender")
	}
	return nil
}

// Resolve checks a battle's terminal conditions and applies the transition
// at most once. Terminal battles report OutcomeAlreadyResolved.
func (s *Service) Resolve(ctx context.Context, battleID string) (domain.Resolution, error) {
	ctx, span := tracer.Start(ctx, "battle.resolve", trace.WithAttributes(attribute.String("battle.id", battleID)))
	defer span.End()

	battleID = strings.TrimSpace(battleID)
	if battleID == "" {
		return domain.Resolution{}, domain.InvalidInput("battle_id", "battle id is required")
	}
	resolution, err := s.store.ResolveBattle(ctx, battleID, s.now())
	if err != nil {
		return domain.Resolution{}, recordSpanError(span, mapStorageError(err, battleID))
	}
	span.SetAttributes(attribute.String("battle.outcome", string(resolution.Outcome)))
	if resolution.Transitioned() {
		s.afterResolution(ctx, resolution)
	}
	return resolution, nil
}

// afterResolution runs the post-commit work of a first transition: the
// journal line and, detached, the rankings pass. A failed rankings pass is
// retried by the next sweep.
func (s *Service) afterResolution(ctx context.Context, resolution domain.Resolution) {
	if s.journal != nil {
		if err := s.appendJournal(ctx, resolution); err != nil {
			s.logf("journal battle %s: %v", resolution.BattleID, err)
		}
	}
	s.async(func() {
		rankCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Sweep)
		defer cancel()
		if _, err := s.store.ProcessRankings(rankCtx, resolution.BattleID, s.now()); err != nil {
			s.logf("process rankings for battle %s: %v", resolution.BattleID, err)
		}
	})
}

func (s *Service) appendJournal(ctx context.Context, resolution domain.Resolution) error {
	battle, err := s.store.GetBattle(ctx, resolution.BattleID)
	if err != nil {
		return err
	}
	resolvedAt := s.now()
	if resolution.ResolvedAt != nil {
		resolvedAt = *resolution.ResolvedAt
	}
	return s.journal.Append(journal.Entry{
		BattleID:          battle.ID,
		RegionKey:         battle.RegionKey,
		Status:            string(resolution.Status),
		AttackerFactionID: battle.AttackerFactionID,
		DefenderFactionID: battle.DefenderFactionID,
		CurrentDefense:    battle.CurrentDefense,
		AttackerScore:     battle.AttackerScore,
		DefenderScore:     battle.DefenderScore,
		RegionTransferred: resolution.RegionTransferred,
		ResolvedAt:        resolvedAt,
	})
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Scanned           int
	Resolved          int
	AlreadyResolved   int
	StillActive       int
	Failed            int
	RankingsProcessed int
	RankingsFailed    int
}

// ResolveExpiredBattles resolves every active battle past its deadline and
// runs pending rankings passes. A failing battle is logged and skipped.
func (s *Service) ResolveExpiredBattles(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "battle.sweep")
	defer span.End()

	var report SweepReport
	now := s.now()
	ids, err := s.store.ListExpiredActiveBattles(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return report, recordSpanError(span, fmt.Errorf("list expired battles: %w", err))
	}
	report.Scanned = len(ids)
	for _, battleID := range ids {
		resolution, err := s.store.ResolveBattle(ctx, battleID, now)
		if err != nil {
			report.Failed++
			s.logf("sweep battle %s: %v", battleID, err)
			continue
		}
		switch resolution.Outcome {
		case domain.OutcomeResolved:
			report.Resolved++
			if s.journal != nil {
				if err := s.appendJournal(ctx, resolution); err != nil {
					s.logf("journal battle %s: %v", battleID, err)
				}
			}
		case domain.OutcomeAlreadyResolved:
			report.AlreadyResolved++
		default:
			report.StillActive++
		}
	}

	pending, err := s.store.ListPendingRankings(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return report, recordSpanError(span, fmt.Errorf("list pending rankings: %w", err))
	}
	for _, battleID := range pending {
		result, err := s.store.ProcessRankings(ctx, battleID, s.now())
		if err != nil {
			report.RankingsFailed++
			s.logf("sweep rankings for battle %s: %v", battleID, err)
			continue
		}
		if result.Processed {
			report.RankingsProcessed++
		}
	}
	span.SetAttributes(
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.resolved", report.Resolved),
		attribute.Int("sweep.failed", report.Failed),
	)
	return report, nil
}

// RecordParticipation credits damage to a user in a battle without applying
// it to the wall. It backs operator backfills and refuses contexts carrying
// an end-user identity.
func (s *Service) RecordParticipation(ctx context.Context, userID string, battleID string, side domain.Side, damage int64) (domain.UserStats, error) {
	if requestctx.SubjectFromContext(ctx) != "" || requestctx.UserIDFromContext(ctx) != "" {
		return domain.UserStats{}, apperrors.New(apperrors.CodeForbidden, "participation backfill is not available to players")
	}
	battleID = strings.TrimSpace(battleID)
	userID = strings.TrimSpace(userID)
	if battleID == "" {
		return domain.UserStats{}, domain.InvalidInput("battle_id", "battle id is required")
	}
	if userID == "" {
		return domain.UserStats{}, domain.InvalidInput("user_id", "user id is required")
	}
	if err := (domain.Strike{Side: side, Damage: damage}).Validate(); err != nil {
		return domain.UserStats{}, err
	}
	stats, err := s.store.RecordParticipation(ctx, storage.ParticipationRecord{
		BattleID: battleID,
		UserID:   userID,
		Side:     side,
		Damage:   damage,
		At:       s.now(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return domain.UserStats{}, userNotFound(userID)
		}
		return domain.UserStats{}, mapStorageError(err, battleID)
	}
	return stats, nil
}

// GetUserStats loads a user's aggregates.
func (s *Service) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	userID = strings.TrimSpace(userID)
	stats, err := s.store.GetUserStats(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return domain.UserStats{}, userNotFound(userID)
		}
		return domain.UserStats{}, fmt.Errorf("get user stats: %w", err)
	}
	return stats, nil
}

// GetRegion loads a region by key.
func (s *Service) GetRegion(ctx context.Context, regionKey string) (domain.Region, error) {
	key, err := domain.NormalizeRegionKey(regionKey)
	if err != nil {
		return domain.Region{}, err
	}
	region, err := s.store.GetRegion(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Region{}, domain.RegionNotFound(key)
		}
		return domain.Region{}, fmt.Errorf("get region: %w", err)
	}
	return region, nil
}

// PutMembership adds or updates a faction member. Only a faction leader may
// change membership, except for the first member, who founds the faction.
func (s *Service) PutMembership(ctx context.Context, factionID string, userID string, role storage.Role) (storage.Membership, error) {
	factionID = strings.TrimSpace(factionID)
	userID = strings.TrimSpace(userID)
	if factionID == "" {
		return storage.Membership{}, domain.InvalidInput("faction_id", "faction id is required")
	}
	if !role.Valid() {
		return storage.Membership{}, domain.InvalidInput("role", "role must be leader, officer or member")
	}
	actorID, err := s.actor(ctx)
	if err != nil {
		return storage.Membership{}, err
	}
	members, err := s.store.ListFactionMembers(ctx, factionID)
	if err != nil {
		return storage.Membership{}, fmt.Errorf("list faction members: %w", err)
	}
	if len(members) == 0 {
		if userID != actorID || role != storage.RoleLeader {
			return storage.Membership{}, apperrors.New(apperrors.CodeForbidden, "a new faction must be founded by its leader")
		}
	} else if !isLeader(members, actorID) {
		return storage.Membership{}, apperrors.New(apperrors.CodeForbidden, "only faction leaders may change membership")
	}

	membership := storage.Membership{FactionID: factionID, UserID: userID, Role: role, JoinedAt: s.now()}
	if err := s.store.PutMembership(ctx, membership); err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			return storage.Membership{}, userNotFound(userID)
		case errors.Is(err, storage.ErrConflict):
			return storage.Membership{}, apperrors.WithMetadata(apperrors.CodeInvalidInput, "user already belongs to another faction", map[string]string{"Field": "user_id"})
		}
		return storage.Membership{}, fmt.Errorf("put membership: %w", err)
	}
	return membership, nil
}

func isLeader(members []storage.Membership, userID string) bool {
	for _, m := range members {
		if m.UserID == userID && m.Role == storage.RoleLeader {
			return true
		}
	}
	return false
}

// RebuildStats recomputes every user's aggregates from participation history
// and returns how many users were rewritten.
func (s *Service) RebuildStats(ctx context.Context, table domain.RankTable) (int, error) {
	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	now := s.now()
	for i, userID := range userIDs {
		history, err := s.store.ListParticipationHistory(ctx, userID)
		if err != nil {
			return i, fmt.Errorf("load history for %s: %w", userID, err)
		}
		medals, err := s.store.MedalCount(ctx, userID)
		if err != nil {
			return i, fmt.Errorf("count medals for %s: %w", userID, err)
		}
		if err := s.store.PutUserStats(ctx, domain.RebuildStats(userID, history, medals, table, now)); err != nil {
			return i, fmt.Errorf("store stats for %s: %w", userID, err)
		}
	}
	return len(userIDs), nil
}

// CurrentUserID resolves the authenticated caller.
func (s *Service) CurrentUserID(ctx context.Context) (string, error) {
	return s.actor(ctx)
}

func userNotFound(userID string) error {
	return apperrors.WithMetadata(apperrors.CodeUserNotFound, "user "+userID+" not found", map[string]string{"UserID": userID})
}

func mapStorageError(err error, battleID string) error {
	var domainErr *apperrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return domain.BattleNotFound(battleID)
	case errors.Is(err, storage.ErrAlreadyResolved):
		return domain.AlreadyResolved(battleID, "")
	case errors.Is(err, storage.ErrSideMismatch):
		return apperrors.New(apperrors.CodeForbidden, "participant already fights for the other side")
	case errors.Is(err, storage.ErrUserNotFound):
		return apperrors.New(apperrors.CodeUserNotFound, "user not found")
	case errors.Is(err, storage.ErrConflict):
		return apperrors.Wrap(apperrors.CodeBattleConflict, "battle write conflict", err)
	default:
		return err
	}
}

func recordSpanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
