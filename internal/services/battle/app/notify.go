package app

import (
	"context"

	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage"
	notificationsdomain "github.com/louisbranch/conquest.space/internal/services/notifications/domain"
)

// BattleStartedFanout is the notifications entry point the battle service
// calls after creating a battle.
type BattleStartedFanout interface {
	BattleStarted(ctx context.Context, input notificationsdomain.BattleStartedInput) (notificationsdomain.FanoutReport, error)
}

// NotificationNotifier adapts the notifications service to Notifier.
type NotificationNotifier struct {
	Fanout BattleStartedFanout
	Logf   func(string, ...any)
}

// BattleStarted fans out defend and attack notifications for battle.
func (n NotificationNotifier) BattleStarted(ctx context.Context, battle domain.Battle) error {
	report, err := n.Fanout.BattleStarted(ctx, notificationsdomain.BattleStartedInput{
		BattleID:          battle.ID,
		RegionKey:         battle.RegionKey,
		AttackerFactionID: battle.AttackerFactionID,
		DefenderFactionID: battle.DefenderFactionID,
		EndsAt:            battle.EndsAt,
	})
	if n.Logf != nil {
		n.Logf("battle %s fanout: recipients=%d inserted=%d duplicates=%d failed=%d",
			battle.ID, report.Recipients, report.Inserted, report.Duplicates, report.Failed)
	}
	return err
}

// MemberDirectory exposes faction membership to the notifications service.
type MemberDirectory struct {
	Store storage.MembershipStore
}

// ListFactionMembers lists members with their roles.
func (d MemberDirectory) ListFactionMembers(ctx context.Context, factionID string) ([]notificationsdomain.Member, error) {
	memberships, err := d.Store.ListFactionMembers(ctx, factionID)
	if err != nil {
		return nil, err
	}
	members := make([]notificationsdomain.Member, 0, len(memberships))
	for _, m := range memberships {
		members = append(members, notificationsdomain.Member{
			UserID: m.UserID,
			Role:   notificationsdomain.Role(m.Role),
		})
	}
	return members, nil
}
