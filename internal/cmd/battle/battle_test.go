package battle

import (
	"context"
	"flag"
	"testing"
)

func TestParseConfigParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("battle", flag.ContinueOnError)
	t.Setenv("CONQUEST_SPACE_BATTLE_DB_PATH", "/var/lib/conquest/battle.db")
	t.Setenv("CONQUEST_SPACE_TOKEN_ISSUER", "conquest-auth")

	cfg, err := ParseConfig(fs, []string{"-addr", ":9090", "-fanout-rate", "25"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, ":9090")
	}
	if cfg.DBPath != "/var/lib/conquest/battle.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
	if cfg.FanoutPerSecond != 25 {
		t.Fatalf("fanout rate = %v, want 25", cfg.FanoutPerSecond)
	}
	if cfg.FanoutBurst != 50 {
		t.Fatalf("fanout burst = %d, want 50", cfg.FanoutBurst)
	}
	if cfg.TokenIssuer != "conquest-auth" {
		t.Fatalf("token issuer = %q, want conquest-auth", cfg.TokenIssuer)
	}
	if cfg.NotificationsDBPath != "data/notifications.db" {
		t.Fatalf("notifications db = %q, want default", cfg.NotificationsDBPath)
	}
}

func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("battle", flag.ContinueOnError)
	fs.SetOutput(discard{})
	if _, err := ParseConfig(fs, []string{"-nope"}); err == nil {
		t.Fatal("expected unknown flag error")
	}
}

func TestRunRequiresTokenConfig(t *testing.T) {
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected missing token config error")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
