// Package app runs the battle expiry sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/timeouts"
	battleapp "github.com/louisbranch/conquest.space/internal/services/battle/app"
	"github.com/louisbranch/conquest.space/internal/services/sweeper/storage"
)

const defaultInterval = time.Minute

// Sweeper resolves expired battles and pending rankings passes.
type Sweeper interface {
	ResolveExpiredBattles(ctx context.Context) (battleapp.SweepReport, error)
}

// Config tunes the sweep loop.
type Config struct {
	Interval   time.Duration
	RunTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = timeouts.Sweep
	}
	return c
}

// Loop ticks the sweeper and records each run.
type Loop struct {
	sweeper Sweeper
	runs    storage.RunStore
	cfg     Config
	clock   func() time.Time
	logf    func(string, ...any)
}

// New builds a sweep loop. runs may be nil to skip run history.
func New(sweeper Sweeper, runs storage.RunStore, cfg Config, logf func(string, ...any)) *Loop {
	if logf == nil {
		logf = log.Printf
	}
	return &Loop{
		sweeper: sweeper,
		runs:    runs,
		cfg:     cfg.normalized(),
		clock:   time.Now,
		logf:    logf,
	}
}

// RunOnce performs one bounded sweep and records its summary.
func (l *Loop) RunOnce(ctx context.Context) (battleapp.SweepReport, error) {
	if l == nil || l.sweeper == nil {
		return battleapp.SweepReport{}, fmt.Errorf("sweeper is not configured")
	}
	runCtx, cancel := context.WithTimeout(ctx, l.cfg.RunTimeout)
	defer cancel()

	startedAt := l.clock().UTC()
	report, err := l.sweeper.ResolveExpiredBattles(runCtx)
	finishedAt := l.clock().UTC()

	if l.runs != nil {
		run := storage.SweepRunRecord{
			StartedAt:         startedAt,
			FinishedAt:        finishedAt,
			Scanned:           report.Scanned,
			Resolved:          report.Resolved,
			AlreadyResolved:   report.AlreadyResolved,
			StillActive:       report.StillActive,
			Failed:            report.Failed,
			RankingsProcessed: report.RankingsProcessed,
			RankingsFailed:    report.RankingsFailed,
		}
		if err != nil {
			run.LastError = err.Error()
		}
		if recordErr := l.runs.RecordRun(context.WithoutCancel(ctx), run); recordErr != nil {
			l.logf("record sweep run: %v", recordErr)
		}
	}
	if err != nil {
		return report, err
	}
	if report.Resolved > 0 || report.Failed > 0 || report.RankingsProcessed > 0 || report.RankingsFailed > 0 {
		l.logf("sweep: scanned=%d resolved=%d failed=%d rankings=%d rankings_failed=%d",
			report.Scanned, report.Resolved, report.Failed, report.RankingsProcessed, report.RankingsFailed)
	}
	return report, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
// A failing sweep is logged and retried on the next tick.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				l.logf("sweep: %v", err)
			} else {
				l.logf("sweep: timed out after %s", l.cfg.RunTimeout)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
