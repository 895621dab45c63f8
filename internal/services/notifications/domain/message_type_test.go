package domain

import "testing"

func TestNormalizeMessageType(t *testing.T) {
	t.Parallel()

	if got := NormalizeMessageType("  BATTLE.STARTED.DEFEND  "); got != MessageTypeDefendCall {
		t.Fatalf("NormalizeMessageType = %q, want %q", got, MessageTypeDefendCall)
	}
}

func TestSelectRecipients(t *testing.T) {
	t.Parallel()

	attackers := []Member{
		{UserID: "red-leader", Role: RoleLeader},
		{UserID: "red-officer", Role: RoleOfficer},
		{UserID: "red-member", Role: RoleMember},
	}
	defenders := []Member{
		{UserID: "blue-leader", Role: RoleLeader},
		{UserID: "blue-member", Role: RoleMember},
		{UserID: "blue-member", Role: RoleMember},
	}

	got := SelectRecipients("red", attackers, "blue", defenders)
	want := []Recipient{
		{UserID: "blue-leader", FactionID: "blue", MessageType: MessageTypeDefendCall},
		{UserID: "blue-member", FactionID: "blue", MessageType: MessageTypeDefendCall},
		{UserID: "red-leader", FactionID: "red", MessageType: MessageTypeAttackLaunched},
	}
	if len(got) != len(want) {
		t.Fatalf("recipients = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recipient[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSelectRecipientsWithoutDefender(t *testing.T) {
	t.Parallel()

	got := SelectRecipients("red", []Member{{UserID: "red-leader", Role: RoleLeader}}, "", []Member{{UserID: "stray"}})
	if len(got) != 1 || got[0].UserID != "red-leader" {
		t.Fatalf("recipients = %+v, want only red-leader", got)
	}
}
