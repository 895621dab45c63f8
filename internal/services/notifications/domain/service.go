// Package domain implements battle notification fanout and the recipient inbox.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/id"
	"github.com/louisbranch/conquest.space/internal/services/notifications/storage"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound indicates a notification record was not found.
	ErrNotFound = errors.New("notification not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("notification store is not configured")
	// ErrDirectoryNotConfigured indicates the service cannot resolve faction members.
	ErrDirectoryNotConfigured = errors.New("member directory is not configured")
	// ErrRecipientUserIDRequired indicates recipient identity is required.
	ErrRecipientUserIDRequired = errors.New("recipient user id is required")
	// ErrBattleIDRequired indicates a battle id is required.
	ErrBattleIDRequired = errors.New("battle id is required")
	// ErrNotificationIDRequired indicates notification ID is required.
	ErrNotificationIDRequired = errors.New("notification id is required")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	defaultInsertsPerSecond = 200
	defaultInsertBurst      = 50
)

// Notification captures one user-targeted battle notification.
type Notification struct {
	ID              string
	RecipientUserID string
	BattleID        string
	FactionID       string
	MessageType     string
	PayloadJSON     string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage is a paged recipient inbox view.
type NotificationPage struct {
	Notifications []Notification
	NextPageToken string
}

// BattleStartedInput describes a battle that was just declared.
type BattleStartedInput struct {
	BattleID          string
	RegionKey         string
	AttackerFactionID string
	DefenderFactionID string
	EndsAt            time.Time
}

// FanoutReport counts what one fanout did.
type FanoutReport struct {
	Recipients int
	Inserted   int
	Duplicates int
	Failed     int
}

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// MemberDirectory resolves faction members for fanout.
type MemberDirectory interface {
	ListFactionMembers(ctx context.Context, factionID string) ([]Member, error)
}

// Option configures a Service.
type Option func(*Service)

// WithRateLimit paces notification inserts.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger for best-effort failures.
func WithLogger(logf func(string, ...any)) Option {
	return func(s *Service) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// Service orchestrates battle notification fanout and inbox reads.
type Service struct {
	store   storage.NotificationStore
	members MemberDirectory
	limiter *rate.Limiter
	clock   func() time.Time
	newID   func() (string, error)
	logf    func(string, ...any)
}

// NewService constructs notification use-cases.
func NewService(store storage.NotificationStore, members MemberDirectory, clock func() time.Time, newID func() (string, error), opts ...Option) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	s := &Service{
		store:   store,
		members: members,
		limiter: rate.NewLimiter(defaultInsertsPerSecond, defaultInsertBurst),
		clock:   clock,
		newID:   newID,
		logf:    log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type battleStartedPayload struct {
	BattleID          string    `json:"battle_id"`
	RegionKey         string    `json:"region_key"`
	AttackerFactionID string    `json:"attacker_faction_id"`
	DefenderFactionID string    `json:"defender_faction_id,omitempty"`
	EndsAt            time.Time `json:"ends_at"`
}

// BattleStarted notifies the defending faction's members and the attacking
// faction's leaders. Each (recipient, battle, faction, type) is stored at most
// once, so repeating the fanout is safe. A failing recipient is logged and
// skipped.
func (s *Service) BattleStarted(ctx context.Context, input BattleStartedInput) (FanoutReport, error) {
	if s == nil || s.store == nil {
		return FanoutReport{}, ErrStoreNotConfigured
	}
	if s.members == nil {
		return FanoutReport{}, ErrDirectoryNotConfigured
	}
	battleID := strings.TrimSpace(input.BattleID)
	if battleID == "" {
		return FanoutReport{}, ErrBattleIDRequired
	}

	attackers, err := s.members.ListFactionMembers(ctx, input.AttackerFactionID)
	if err != nil {
		return FanoutReport{}, fmt.Errorf("list attacking faction: %w", err)
	}
	var defenders []Member
	if input.DefenderFactionID != "" {
		defenders, err = s.members.ListFactionMembers(ctx, input.DefenderFactionID)
		if err != nil {
			return FanoutReport{}, fmt.Errorf("list defending faction: %w", err)
		}
	}
	recipients := SelectRecipients(input.AttackerFactionID, attackers, input.DefenderFactionID, defenders)

	payload, err := json.Marshal(battleStartedPayload{
		BattleID:          battleID,
		RegionKey:         input.RegionKey,
		AttackerFactionID: input.AttackerFactionID,
		DefenderFactionID: input.DefenderFactionID,
		EndsAt:            input.EndsAt.UTC(),
	})
	if err != nil {
		return FanoutReport{}, fmt.Errorf("encode payload: %w", err)
	}

	report := FanoutReport{Recipients: len(recipients)}
	for _, recipient := range recipients {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}
		notificationID, err := s.newID()
		if err != nil {
			return report, err
		}
		inserted, err := s.store.InsertNotification(ctx, storage.NotificationRecord{
			ID:              notificationID,
			RecipientUserID: recipient.UserID,
			BattleID:        battleID,
			FactionID:       recipient.FactionID,
			MessageType:     recipient.MessageType,
			PayloadJSON:     string(payload),
			CreatedAt:       s.nowUTC(),
		})
		switch {
		case err != nil:
			report.Failed++
			s.logf("notify %s of battle %s: %v", recipient.UserID, battleID, err)
		case inserted:
			report.Inserted++
		default:
			report.Duplicates++
		}
	}
	return report, nil
}

// ListInbox lists recipient inbox notifications newest first.
func (s *Service) ListInbox(ctx context.Context, input ListInboxInput) (NotificationPage, error) {
	if s == nil || s.store == nil {
		return NotificationPage{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return NotificationPage{}, ErrRecipientUserIDRequired
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	page, err := s.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
	if err != nil {
		return NotificationPage{}, mapStorageError(err)
	}
	result := NotificationPage{
		Notifications: make([]Notification, 0, len(page.Notifications)),
		NextPageToken: page.NextPageToken,
	}
	for _, record := range page.Notifications {
		result.Notifications = append(result.Notifications, fromRecord(record))
	}
	return result, nil
}

// UnreadCount returns how many notifications the recipient has not read.
func (s *Service) UnreadCount(ctx context.Context, recipientUserID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, ErrRecipientUserIDRequired
	}
	return s.store.CountUnreadNotificationsByRecipient(ctx, recipientUserID)
}

// MarkRead marks one recipient notification as read.
func (s *Service) MarkRead(ctx context.Context, recipientUserID string, notificationID string) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientUserIDRequired
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Notification{}, ErrNotificationIDRequired
	}
	record, err := s.store.MarkNotificationRead(ctx, recipientUserID, notificationID, s.nowUTC())
	if err != nil {
		return Notification{}, mapStorageError(err)
	}
	return fromRecord(record), nil
}

func fromRecord(record storage.NotificationRecord) Notification {
	return Notification{
		ID:              record.ID,
		RecipientUserID: record.RecipientUserID,
		BattleID:        record.BattleID,
		FactionID:       record.FactionID,
		MessageType:     record.MessageType,
		PayloadJSON:     record.PayloadJSON,
		CreatedAt:       record.CreatedAt,
		ReadAt:          record.ReadAt,
	}
}

func mapStorageError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
