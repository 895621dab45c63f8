package sweeper

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("sweeper", flag.ContinueOnError)
	t.Setenv("CONQUEST_SPACE_SWEEPER_PORT", "9099")
	t.Setenv("CONQUEST_SPACE_BATTLE_DB_PATH", "shared/battle.db")

	cfg, err := ParseConfig(fs, []string{"-interval", "5s", "-batch-size", "10"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9099 {
		t.Fatalf("port = %d, want 9099", cfg.Port)
	}
	if cfg.BattleDBPath != "shared/battle.db" {
		t.Fatalf("battle db = %q, want %q", cfg.BattleDBPath, "shared/battle.db")
	}
	if cfg.Interval != 5*time.Second {
		t.Fatalf("interval = %v, want 5s", cfg.Interval)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("batch size = %d, want 10", cfg.BatchSize)
	}
	if cfg.DBPath != "data/sweeper.db" {
		t.Fatalf("db path = %q, want default", cfg.DBPath)
	}
}

func TestParseConfigDefaultsToOneMinuteInterval(t *testing.T) {
	fs := flag.NewFlagSet("sweeper", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Interval != time.Minute {
		t.Fatalf("interval = %v, want 1m", cfg.Interval)
	}
}
