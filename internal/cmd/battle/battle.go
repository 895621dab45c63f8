// Package battle parses battle command flags and launches the battle server.
package battle

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/conquest.space/internal/platform/cmd"
	battleserver "github.com/louisbranch/conquest.space/internal/services/battle/app"
)

// Config holds battle command configuration.
type Config struct {
	Addr                string  `env:"CONQUEST_SPACE_BATTLE_ADDR" envDefault:":8090"`
	DBPath              string  `env:"CONQUEST_SPACE_BATTLE_DB_PATH" envDefault:"data/battle.db"`
	NotificationsDBPath string  `env:"CONQUEST_SPACE_NOTIFICATIONS_DB_PATH" envDefault:"data/notifications.db"`
	JournalDir          string  `env:"CONQUEST_SPACE_BATTLE_JOURNAL_DIR"`
	RankTablePath       string  `env:"CONQUEST_SPACE_RANK_TABLE_PATH"`
	SweepBatchSize      int     `env:"CONQUEST_SPACE_SWEEP_BATCH_SIZE" envDefault:"100"`
	FanoutPerSecond     float64 `env:"CONQUEST_SPACE_FANOUT_PER_SECOND" envDefault:"200"`
	FanoutBurst         int     `env:"CONQUEST_SPACE_FANOUT_BURST" envDefault:"50"`
	TokenIssuer         string  `env:"CONQUEST_SPACE_TOKEN_ISSUER"`
	TokenAudience       string  `env:"CONQUEST_SPACE_TOKEN_AUDIENCE"`
	TokenPublicKey      string  `env:"CONQUEST_SPACE_TOKEN_PUBLIC_KEY"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The battle HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The battle SQLite database path")
	fs.StringVar(&cfg.NotificationsDBPath, "notifications-db-path", cfg.NotificationsDBPath, "The notifications SQLite database path")
	fs.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "Directory for the battle outcome journal (disabled when empty)")
	fs.StringVar(&cfg.RankTablePath, "rank-table", cfg.RankTablePath, "YAML rank tier table (embedded default when empty)")
	fs.IntVar(&cfg.SweepBatchSize, "sweep-batch-size", cfg.SweepBatchSize, "Maximum battles resolved per sweep request")
	fs.Float64Var(&cfg.FanoutPerSecond, "fanout-rate", cfg.FanoutPerSecond, "Notification inserts per second during fanout")
	fs.IntVar(&cfg.FanoutBurst, "fanout-burst", cfg.FanoutBurst, "Notification insert burst during fanout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the battle server.
func Run(ctx context.Context, cfg Config) error {
	tokens, err := battleserver.NewTokenConfig(cfg.TokenIssuer, cfg.TokenAudience, cfg.TokenPublicKey, time.Now)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBattle, func(ctx context.Context) error {
		return battleserver.Run(ctx, battleserver.RuntimeConfig{
			Addr:                cfg.Addr,
			DBPath:              cfg.DBPath,
			NotificationsDBPath: cfg.NotificationsDBPath,
			JournalDir:          cfg.JournalDir,
			RankTablePath:       cfg.RankTablePath,
			SweepBatchSize:      cfg.SweepBatchSize,
			FanoutPerSecond:     cfg.FanoutPerSecond,
			FanoutBurst:         cfg.FanoutBurst,
			Tokens:              tokens,
		})
	})
}
