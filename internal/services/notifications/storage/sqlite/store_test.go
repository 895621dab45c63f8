package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/conquest.space/internal/services/notifications/storage"
	"golang.org/x/sync/errgroup"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestInsertNotificationIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := storage.NotificationRecord{
		ID:              "notif-1",
		RecipientUserID: "user-1",
		BattleID:        "battle-1",
		FactionID:       "blue",
		MessageType:     "battle.started.defend",
		PayloadJSON:     `{"region_key":"hex-a"}`,
		CreatedAt:       now,
	}
	inserted, err := store.InsertNotification(context.Background(), record)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to store a row")
	}

	record.ID = "notif-2"
	inserted, err = store.InsertNotification(context.Background(), record)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate insert to be ignored")
	}

	page, err := store.ListNotificationsByRecipient(context.Background(), "user-1", 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Notifications) != 1 || page.Notifications[0].ID != "notif-1" {
		t.Fatalf("notifications = %+v, want only notif-1", page.Notifications)
	}
}

func TestConcurrentDuplicateInsertsStoreOneRow(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var inserted atomic.Int32
	group, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		id := "notif-" + string(rune('a'+i))
		group.Go(func() error {
			ok, err := store.InsertNotification(ctx, storage.NotificationRecord{
				ID:              id,
				RecipientUserID: "user-1",
				BattleID:        "battle-1",
				FactionID:       "blue",
				MessageType:     "battle.started.defend",
				CreatedAt:       now,
			})
			if ok {
				inserted.Add(1)
			}
			return err
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent inserts: %v", err)
	}
	if got := inserted.Load(); got != 1 {
		t.Fatalf("inserted = %d, want 1", got)
	}
}

func TestInsertNotificationValidatesRecord(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.InsertNotification(context.Background(), storage.NotificationRecord{ID: "notif-1"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestListPaginatesAndMarksRead(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, battleID := range []string{"battle-1", "battle-2", "battle-3"} {
		if _, err := store.InsertNotification(ctx, storage.NotificationRecord{
			ID:              "notif-" + battleID,
			RecipientUserID: "user-1",
			BattleID:        battleID,
			FactionID:       "blue",
			MessageType:     "battle.started.defend",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("insert %s: %v", battleID, err)
		}
	}

	first, err := store.ListNotificationsByRecipient(ctx, "user-1", 2, "")
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Notifications) != 2 || first.Notifications[0].BattleID != "battle-3" {
		t.Fatalf("first page = %+v", first.Notifications)
	}
	if first.NextPageToken != "notif-battle-2" {
		t.Fatalf("next page token = %q, want notif-battle-2", first.NextPageToken)
	}
	second, err := store.ListNotificationsByRecipient(ctx, "user-1", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Notifications) != 1 || second.Notifications[0].BattleID != "battle-1" || second.NextPageToken != "" {
		t.Fatalf("second page = %+v", second)
	}

	readAt := base.Add(time.Hour)
	read, err := store.MarkNotificationRead(ctx, "user-1", "notif-battle-1", readAt)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if read.ReadAt == nil || !read.ReadAt.Equal(readAt) {
		t.Fatalf("read at = %v, want %v", read.ReadAt, readAt)
	}
	again, err := store.MarkNotificationRead(ctx, "user-1", "notif-battle-1", readAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if !again.ReadAt.Equal(readAt) {
		t.Fatalf("read at changed to %v", again.ReadAt)
	}
	unread, err := store.CountUnreadNotificationsByRecipient(ctx, "user-1")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 2 {
		t.Fatalf("unread = %d, want 2", unread)
	}
	if _, err := store.MarkNotificationRead(ctx, "user-2", "notif-battle-1", readAt); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("other recipient err = %v, want ErrNotFound", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "notifications.db"))
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
