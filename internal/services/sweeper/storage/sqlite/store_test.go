package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/conquest.space/internal/services/sweeper/storage"
)

func TestRecordAndListRuns(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 23, 30, 0, 0, time.UTC)

	if err := store.RecordRun(context.Background(), storage.SweepRunRecord{
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Scanned:    3,
		Resolved:   2,
		Failed:     1,
		LastError:  "  battle b-3: database is locked ",
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := store.RecordRun(context.Background(), storage.SweepRunRecord{
		StartedAt:         now.Add(time.Minute),
		FinishedAt:        now.Add(time.Minute),
		RankingsProcessed: 2,
	}); err != nil {
		t.Fatalf("record second run: %v", err)
	}

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs len = %d, want 2", len(runs))
	}
	if runs[0].RankingsProcessed != 2 {
		t.Fatalf("runs[0].rankings_processed = %d, want 2", runs[0].RankingsProcessed)
	}
	if runs[1].Resolved != 2 || runs[1].Failed != 1 {
		t.Fatalf("runs[1] = %+v, want resolved 2 failed 1", runs[1])
	}
	if runs[1].LastError != "battle b-3: database is locked" {
		t.Fatalf("runs[1].last_error = %q", runs[1].LastError)
	}
	if !runs[1].StartedAt.Equal(now) {
		t.Fatalf("runs[1].started_at = %v, want %v", runs[1].StartedAt, now)
	}

	limited, err := store.ListRuns(context.Background(), 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited len = %d, want 1", len(limited))
	}
}

func TestRecordRunValidation(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 2, 21, 23, 30, 0, 0, time.UTC)

	if err := store.RecordRun(context.Background(), storage.SweepRunRecord{}); err == nil {
		t.Fatal("expected validation error for empty run")
	}
	if err := store.RecordRun(context.Background(), storage.SweepRunRecord{StartedAt: now, FinishedAt: now.Add(-time.Second)}); err == nil {
		t.Fatal("expected validation error for inverted run")
	}
	if err := store.RecordRun(context.Background(), storage.SweepRunRecord{StartedAt: now, FinishedAt: now, Failed: -1}); err == nil {
		t.Fatal("expected validation error for negative count")
	}
	if _, err := store.ListRuns(context.Background(), 0); err == nil {
		t.Fatal("expected validation error for zero limit")
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweeper.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
