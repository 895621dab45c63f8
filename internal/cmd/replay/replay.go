// Package replay backfills participation and recomputes user aggregates from
// stored history.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/conquest.space/internal/platform/cmd"
	battleapp "github.com/louisbranch/conquest.space/internal/services/battle/app"
	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/journal"
	battlesqlite "github.com/louisbranch/conquest.space/internal/services/battle/storage/sqlite"
)

const maxImportLineBytes = 64 * 1024

// Config holds replay command configuration.
type Config struct {
	DBPath          string        `env:"CONQUEST_SPACE_BATTLE_DB_PATH" envDefault:"data/battle.db"`
	RankTablePath   string        `env:"CONQUEST_SPACE_RANK_TABLE_PATH"`
	ImportPath      string        `env:"CONQUEST_SPACE_REPLAY_IMPORT_PATH"`
	JournalDir      string        `env:"CONQUEST_SPACE_BATTLE_JOURNAL_DIR"`
	Timeout         time.Duration `env:"CONQUEST_SPACE_REPLAY_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"CONQUEST_SPACE_OTEL_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The battle SQLite database path")
	fs.StringVar(&cfg.RankTablePath, "rank-table", cfg.RankTablePath, "YAML rank tier table (embedded default when empty)")
	fs.StringVar(&cfg.ImportPath, "import", cfg.ImportPath, "JSONL participation rows to backfill before rebuilding")
	fs.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "Outcome journal directory to verify (skipped when empty)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall replay timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Telemetry flush timeout on exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run backfills, rebuilds every user's stats and verifies the journal,
// reporting each step to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	options := entrypoint.RunOptions{ShutdownTimeout: cfg.ShutdownTimeout, RunTimeout: cfg.Timeout}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceReplay, options, func(ctx context.Context) error {
		return replay(ctx, cfg, out, log.Printf)
	})
}

func replay(ctx context.Context, cfg Config, out io.Writer, logf func(string, ...any)) error {
	table, err := domain.LoadRankTable(cfg.RankTablePath)
	if err != nil {
		return fmt.Errorf("load rank table: %w", err)
	}
	store, err := battlesqlite.Open(cfg.DBPath, battlesqlite.WithRankTable(table))
	if err != nil {
		return fmt.Errorf("open battle sqlite store: %w", err)
	}
	defer store.Close()

	service := battleapp.NewService(store, battleapp.Config{}, battleapp.WithLogger(logf))
	if path := strings.TrimSpace(cfg.ImportPath); path != "" {
		imported, skipped, err := importParticipation(ctx, service, path, logf)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d participations (%d skipped)\n", imported, skipped)
	}

	rebuilt, err := service.RebuildStats(ctx, table)
	if err != nil {
		return fmt.Errorf("rebuild stats after %d users: %w", rebuilt, err)
	}
	fmt.Fprintf(out, "rebuilt stats for %d users\n", rebuilt)

	if dir := strings.TrimSpace(cfg.JournalDir); dir != "" {
		outcomes, files, err := verifyJournal(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "journal holds %d outcomes in %d files\n", outcomes, files)
	}
	return nil
}

// participationRow is one backfill line.
type participationRow struct {
	UserID   string `json:"user_id"`
	BattleID string `json:"battle_id"`
	Side     string `json:"side"`
	Damage   int64  `json:"damage"`
}

// importParticipation records every row of a JSONL file. Bad rows are logged
// and skipped; read failures abort.
func importParticipation(ctx context.Context, service *battleapp.Service, path string, logf func(string, ...any)) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	var imported, skipped int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxImportLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return imported, skipped, err
		}
		var row participationRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			skipped++
			logf("import line %d: %v", line, err)
			continue
		}
		side, err := domain.ParseSide(row.Side)
		if err != nil {
			skipped++
			logf("import line %d: %v", line, err)
			continue
		}
		if _, err := service.RecordParticipation(ctx, row.UserID, row.BattleID, side, row.Damage); err != nil {
			skipped++
			logf("import line %d: %v", line, err)
			continue
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, skipped, fmt.Errorf("read import file: %w", err)
	}
	return imported, skipped, nil
}

func verifyJournal(dir string) (int, int, error) {
	files, err := journal.Files(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("list journal files: %w", err)
	}
	outcomes := 0
	for _, file := range files {
		entries, err := journal.ReadFile(file)
		if err != nil {
			return outcomes, len(files), fmt.Errorf("verify journal %s: %w", file, err)
		}
		outcomes += len(entries)
	}
	return outcomes, len(files), nil
}
