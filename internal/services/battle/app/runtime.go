package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/id"
	"github.com/louisbranch/conquest.space/internal/platform/timeouts"
	"github.com/louisbranch/conquest.space/internal/services/battle/domain"
	"github.com/louisbranch/conquest.space/internal/services/battle/journal"
	battlesqlite "github.com/louisbranch/conquest.space/internal/services/battle/storage/sqlite"
	notificationsdomain "github.com/louisbranch/conquest.space/internal/services/notifications/domain"
	notificationssqlite "github.com/louisbranch/conquest.space/internal/services/notifications/storage/sqlite"
	"golang.org/x/sync/errgroup"
)

// RuntimeConfig controls battle server startup.
type RuntimeConfig struct {
	Addr                string
	DBPath              string
	NotificationsDBPath string
	JournalDir          string
	RankTablePath       string
	SweepBatchSize      int
	FanoutPerSecond     float64
	FanoutBurst         int
	Tokens              TokenConfig
	// Listener, when set, is used instead of listening on Addr.
	Listener net.Listener
}

const (
	defaultBattleAddr      = ":8090"
	defaultBattleDB        = "data/battle.db"
	defaultNotificationsDB = "data/notifications.db"
)

// Run serves the battle HTTP API until ctx ends, then drains in-flight
// requests.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaultBattleAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultBattleDB
	}
	if strings.TrimSpace(cfg.NotificationsDBPath) == "" {
		cfg.NotificationsDBPath = defaultNotificationsDB
	}

	rankTable, err := domain.LoadRankTable(cfg.RankTablePath)
	if err != nil {
		return fmt.Errorf("load rank table: %w", err)
	}
	battleStore, err := battlesqlite.Open(cfg.DBPath, battlesqlite.WithRankTable(rankTable))
	if err != nil {
		return fmt.Errorf("open battle sqlite store: %w", err)
	}
	defer func() {
		if closeErr := battleStore.Close(); closeErr != nil {
			log.Printf("close battle sqlite store: %v", closeErr)
		}
	}()

	notificationStore, err := notificationssqlite.Open(cfg.NotificationsDBPath)
	if err != nil {
		return fmt.Errorf("open notifications sqlite store: %w", err)
	}
	defer func() {
		if closeErr := notificationStore.Close(); closeErr != nil {
			log.Printf("close notifications sqlite store: %v", closeErr)
		}
	}()

	var notifyOpts []notificationsdomain.Option
	if cfg.FanoutPerSecond > 0 {
		notifyOpts = append(notifyOpts, notificationsdomain.WithRateLimit(cfg.FanoutPerSecond, max(cfg.FanoutBurst, 1)))
	}
	notifications := notificationsdomain.NewService(notificationStore, MemberDirectory{Store: battleStore}, time.Now, id.NewID, notifyOpts...)

	opts := []Option{WithNotifier(NotificationNotifier{Fanout: notifications, Logf: log.Printf})}
	if dir := strings.TrimSpace(cfg.JournalDir); dir != "" {
		writer := journal.NewWriter(dir, "battle")
		defer func() {
			if closeErr := writer.Close(); closeErr != nil {
				log.Printf("close outcome journal: %v", closeErr)
			}
		}()
		opts = append(opts, WithJournal(writer))
	}
	service := NewService(battleStore, Config{SweepBatchSize: cfg.SweepBatchSize}, opts...)

	listener := cfg.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
		}
	}
	httpServer := &http.Server{
		Handler:           NewServer(service, notifications, cfg.Tokens).Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("battle server listening at %v", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})
	return group.Wait()
}
