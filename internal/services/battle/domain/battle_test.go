package domain

import (
	"math"
	"testing"
	"time"

	apperrors "github.com/louisbranch/conquest.space/internal/platform/errors"
	"pgregory.net/rapid"
)

func activeBattle(defense, initial int64, endsAt time.Time) Battle {
	return Battle{
		ID:                "battle-1",
		RegionKey:         "8a2a1072b59ffff",
		AttackerFactionID: "red",
		DefenderFactionID: "blue",
		CurrentDefense:    defense,
		InitialDefense:    initial,
		EndsAt:            endsAt,
		Status:            StatusActive,
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		battle Battle
		want   Status
	}{
		{name: "defense left before deadline", battle: activeBattle(10, 100, now.Add(time.Minute)), want: StatusActive},
		{name: "depleted before deadline", battle: activeBattle(0, 100, now.Add(time.Minute)), want: StatusAttackerWin},
		{name: "deadline reached", battle: activeBattle(10, 100, now), want: StatusDefenderWin},
		{name: "deadline passed", battle: activeBattle(10, 100, now.Add(-time.Second)), want: StatusDefenderWin},
		{name: "depleted after deadline", battle: activeBattle(0, 100, now.Add(-time.Hour)), want: StatusAttackerWin},
		{
			name: "terminal keeps status",
			battle: func() Battle {
				b := activeBattle(0, 100, now.Add(time.Hour))
				b.Status = StatusDefenderWin
				return b
			}(),
			want: StatusDefenderWin,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.battle, now); got != tc.want {
				t.Fatalf("Resolve = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApplyStrike(t *testing.T) {
	t.Parallel()

	b := activeBattle(1000, 1000, time.Time{})
	b = b.ApplyStrike(Strike{Side: SideAttacker, Damage: 250})
	if b.CurrentDefense != 750 {
		t.Fatalf("defense = %d, want 750", b.CurrentDefense)
	}
	if b.AttackerScore != 250 {
		t.Fatalf("attacker score = %d, want 250", b.AttackerScore)
	}

	b = b.ApplyStrike(Strike{Side: SideDefender, Damage: 400})
	if b.CurrentDefense != 1000 {
		t.Fatalf("defense = %d, want clamp to 1000", b.CurrentDefense)
	}
	if b.DefenderScore != 400 {
		t.Fatalf("defender score = %d, want 400", b.DefenderScore)
	}

	b = b.ApplyStrike(Strike{Side: SideAttacker, Damage: 5000})
	if b.CurrentDefense != 0 {
		t.Fatalf("defense = %d, want clamp to 0", b.CurrentDefense)
	}
}

func TestStrikeValidate(t *testing.T) {
	t.Parallel()

	cases := []Strike{
		{Side: SideAttacker, Damage: 0},
		{Side: SideDefender, Damage: -5},
		{Side: "neutral", Damage: 5},
		{Side: SideAttacker, Damage: MaxStrikeDamage + 1},
		{Side: SideDefender, Damage: math.MaxInt64},
	}
	for _, strike := range cases {
		err := strike.Validate()
		if got := apperrors.GetCode(err); got != apperrors.CodeInvalidInput {
			t.Fatalf("Validate(%+v) code = %q, want %q", strike, got, apperrors.CodeInvalidInput)
		}
	}
	for _, damage := range []int64{1, MaxStrikeDamage} {
		if err := (Strike{Side: SideDefender, Damage: damage}).Validate(); err != nil {
			t.Fatalf("Validate damage %d: %v", damage, err)
		}
	}
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	side, err := ParseSide("  Defender ")
	if err != nil {
		t.Fatalf("ParseSide: %v", err)
	}
	if side != SideDefender {
		t.Fatalf("side = %q, want %q", side, SideDefender)
	}
	if _, err := ParseSide(""); err == nil {
		t.Fatal("expected error for empty side")
	}
}

func TestApplyStrikeKeepsDefenseInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1, 1_000_000).Draw(t, "initial")
		b := activeBattle(initial, initial, time.Time{})
		strikes := rapid.SliceOfN(rapid.Int64Range(1, 2_000_000), 1, 50).Draw(t, "damage")
		sides := rapid.SliceOfN(rapid.SampledFrom([]Side{SideAttacker, SideDefender}), len(strikes), len(strikes)).Draw(t, "sides")
		for i, damage := range strikes {
			b = b.ApplyStrike(Strike{Side: sides[i], Damage: damage})
			if b.CurrentDefense < 0 || b.CurrentDefense > b.InitialDefense {
				t.Fatalf("defense %d outside [0, %d]", b.CurrentDefense, b.InitialDefense)
			}
		}
	})
}

func TestStatusWinner(t *testing.T) {
	t.Parallel()

	if side, ok := StatusAttackerWin.Winner(); !ok || side != SideAttacker {
		t.Fatalf("attacker_win winner = %q %v", side, ok)
	}
	if side, ok := StatusDefenderWin.Winner(); !ok || side != SideDefender {
		t.Fatalf("defender_win winner = %q %v", side, ok)
	}
	if _, ok := StatusActive.Winner(); ok {
		t.Fatal("active battle has no winner")
	}
	if Status("paused").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
