package domain

import "strings"

const (
	// MessageTypeDefendCall asks defending faction members to hold a region.
	MessageTypeDefendCall = "battle.started.defend"
	// MessageTypeAttackLaunched tells attacking faction leaders a battle began.
	MessageTypeAttackLaunched = "battle.started.attack"
)

// NormalizeMessageType normalizes a producer-provided message type token.
func NormalizeMessageType(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Role is the faction role a recipient holds.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleOfficer Role = "officer"
	RoleMember  Role = "member"
)

// Member is one faction member as seen by the fanout.
type Member struct {
	UserID string
	Role   Role
}

// Recipient is one resolved fanout target.
type Recipient struct {
	UserID      string
	FactionID   string
	MessageType string
}

// SelectRecipients returns every defending member and the attacking leaders,
// each at most once.
func SelectRecipients(attackerFactionID string, attackers []Member, defenderFactionID string, defenders []Member) []Recipient {
	seen := make(map[string]struct{}, len(attackers)+len(defenders))
	recipients := make([]Recipient, 0, len(defenders)+1)
	add := func(userID, factionID, messageType string) {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			return
		}
		key := userID + "\x00" + factionID + "\x00" + messageType
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		recipients = append(recipients, Recipient{UserID: userID, FactionID: factionID, MessageType: messageType})
	}
	if defenderFactionID != "" {
		for _, member := range defenders {
			add(member.UserID, defenderFactionID, MessageTypeDefendCall)
		}
	}
	for _, member := range attackers {
		if member.Role == RoleLeader {
			add(member.UserID, attackerFactionID, MessageTypeAttackLaunched)
		}
	}
	return recipients
}
