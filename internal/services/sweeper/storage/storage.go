// Package storage defines sweeper run persistence.
package storage

import (
	"context"
	"time"
)

// SweepRunRecord is one durable sweep tick summary.
type SweepRunRecord struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        time.Time
	Scanned           int
	Resolved          int
	AlreadyResolved   int
	StillActive       int
	Failed            int
	RankingsProcessed int
	RankingsFailed    int
	LastError         string
}

// RunStore persists sweep run history.
type RunStore interface {
	RecordRun(ctx context.Context, run SweepRunRecord) error
	ListRuns(ctx context.Context, limit int) ([]SweepRunRecord, error)
}
