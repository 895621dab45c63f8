package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port          int           `env:"CONQUEST_SPACE_TEST_PORT" envDefault:"123"`
	SweepInterval time.Duration `env:"CONQUEST_SPACE_TEST_SWEEP_INTERVAL" envDefault:"1m"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("port = %d, want 123", cfg.Port)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("sweep interval = %s, want 1m", cfg.SweepInterval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CONQUEST_SPACE_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
