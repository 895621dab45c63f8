// Package sweeper parses sweeper command flags and launches the sweep loop.
package sweeper

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/conquest.space/internal/platform/cmd"
	sweeperserver "github.com/louisbranch/conquest.space/internal/services/sweeper/app"
)

// Config holds sweeper command configuration.
type Config struct {
	Port          int           `env:"CONQUEST_SPACE_SWEEPER_PORT" envDefault:"8091"`
	BattleDBPath  string        `env:"CONQUEST_SPACE_BATTLE_DB_PATH" envDefault:"data/battle.db"`
	DBPath        string        `env:"CONQUEST_SPACE_SWEEPER_DB_PATH" envDefault:"data/sweeper.db"`
	JournalDir    string        `env:"CONQUEST_SPACE_BATTLE_JOURNAL_DIR"`
	RankTablePath string        `env:"CONQUEST_SPACE_RANK_TABLE_PATH"`
	Interval      time.Duration `env:"CONQUEST_SPACE_SWEEPER_INTERVAL" envDefault:"1m"`
	BatchSize     int           `env:"CONQUEST_SPACE_SWEEP_BATCH_SIZE" envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The sweeper health gRPC server port")
	fs.StringVar(&cfg.BattleDBPath, "battle-db-path", cfg.BattleDBPath, "The battle SQLite database path")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The sweeper SQLite database path")
	fs.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "Directory for the battle outcome journal (disabled when empty)")
	fs.StringVar(&cfg.RankTablePath, "rank-table", cfg.RankTablePath, "YAML rank tier table (embedded default when empty)")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Sweep interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum battles resolved per sweep")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sweeper runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSweeper, func(ctx context.Context) error {
		return sweeperserver.Run(ctx, sweeperserver.RuntimeConfig{
			Port:          cfg.Port,
			BattleDBPath:  cfg.BattleDBPath,
			SweeperDBPath: cfg.DBPath,
			JournalDir:    cfg.JournalDir,
			RankTablePath: cfg.RankTablePath,
			Interval:      cfg.Interval,
			BatchSize:     cfg.BatchSize,
		})
	})
}
