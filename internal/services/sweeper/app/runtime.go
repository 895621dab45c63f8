package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/conquest.space/internal/platform/grpc"
	battleapp "github.com/louisbranch/conquest.space/internal/services/battle/app"
	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/journal"
	battlesqlite "github.com/louisbranch/conquest.space/internal/services/battle/storage/sqlite"
	sweepersqlite "github.com/louisbranch/conquest.space/internal/services/sweeper/storage/sqlite"
)

// RuntimeConfig controls sweeper startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	BattleDBPath  string
	SweeperDBPath string
	JournalDir    string
	RankTablePath string
	Interval      time.Duration
	BatchSize     int
}

const (
	defaultSweeperPort = 8091
	defaultBattleDB    = "data/battle.db"
	defaultSweeperDB   = "data/sweeper.db"
	healthService      = "sweeper.runtime"
)

// Run starts sweeper dependencies, the health server, and the sweep loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultSweeperPort
	}
	if strings.TrimSpace(cfg.BattleDBPath) == "" {
		cfg.BattleDBPath = defaultBattleDB
	}
	if strings.TrimSpace(cfg.SweeperDBPath) == "" {
		cfg.SweeperDBPath = defaultSweeperDB
	}

	rankTable, err := domain.LoadRankTable(cfg.RankTablePath)
	if err != nil {
		return fmt.Errorf("load rank table: %w", err)
	}
	battleStore, err := battlesqlite.Open(cfg.BattleDBPath, battlesqlite.WithRankTable(rankTable))
	if err != nil {
		return fmt.Errorf("open battle sqlite store: %w", err)
	}
	defer func() {
		if closeErr := battleStore.Close(); closeErr != nil {
			log.Printf("close battle sqlite store: %v", closeErr)
		}
	}()

	sweeperStore, err := sweepersqlite.Open(cfg.SweeperDBPath)
	if err != nil {
		return fmt.Errorf("open sweeper sqlite store: %w", err)
	}
	defer func() {
		if closeErr := sweeperStore.Close(); closeErr != nil {
			log.Printf("close sweeper sqlite store: %v", closeErr)
		}
	}()

	opts := []battleapp.Option{}
	if dir := strings.TrimSpace(cfg.JournalDir); dir != "" {
		writer := journal.NewWriter(dir, "sweeper")
		defer func() {
			if closeErr := writer.Close(); closeErr != nil {
				log.Printf("close outcome journal: %v", closeErr)
			}
		}()
		opts = append(opts, battleapp.WithJournal(writer))
	}
	service := battleapp.NewService(battleStore, battleapp.Config{SweepBatchSize: cfg.BatchSize}, opts...)
	sweepLoop := New(service, sweeperStore, Config{Interval: cfg.Interval}, log.Printf)

	healthServer, err := platformgrpc.ServeHealth(fmt.Sprintf(":%d", cfg.Port), healthService)
	if err != nil {
		return fmt.Errorf("start sweeper health server: %w", err)
	}
	defer healthServer.Stop()

	log.Printf("sweeper health server listening at %v", healthServer.Addr())
	return sweepLoop.Run(ctx)
}
