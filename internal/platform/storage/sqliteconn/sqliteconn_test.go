package sqliteconn

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" ", nil, ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenAppliesMigrationsAndEnablesForeignKeys(t *testing.T) {
	migrations := fstest.MapFS{
		"0001_items.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items(id TEXT PRIMARY KEY);")},
	}
	db, err := Open(filepath.Join(t.TempDir(), "nested", "items.db"), migrations, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("read foreign keys pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("foreign_keys = %d, want 1", enabled)
	}
	if _, err := db.Exec("INSERT INTO items(id) VALUES ('a')"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	migrations := fstest.MapFS{
		"0001_items.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items(id TEXT PRIMARY KEY);")},
	}
	db, err := Open(filepath.Join(t.TempDir(), "items.db"), migrations, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	want := errors.New("abort")
	err = InTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO items(id) VALUES ('a')"); err != nil {
			return err
		}
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}

func TestIsUniqueConstraint(t *testing.T) {
	if !IsUniqueConstraint(errors.New("constraint failed: UNIQUE constraint failed: items.id (1555)")) {
		t.Fatal("expected unique constraint match")
	}
	if IsUniqueConstraint(errors.New("no such table")) {
		t.Fatal("unexpected match")
	}
	if IsBusy(errors.New("database is locked")) {
		t.Fatal("plain error should not classify as driver busy")
	}
}

func TestMillisRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC)
	if got := FromMillis(ToMillis(at)); !got.Equal(at) {
		t.Fatalf("round trip = %s, want %s", got, at)
	}
	if TimePtr(NullMillis(nil)) != nil {
		t.Fatal("expected nil time for null column")
	}
	if got := TimePtr(NullMillis(&at)); got == nil || !got.Equal(at) {
		t.Fatalf("nullable round trip = %v, want %s", got, at)
	}
}
