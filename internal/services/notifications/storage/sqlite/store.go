// Package sqlite implements notification storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/storage/sqliteconn"
	"github.com/louisbranch/conquest.space/internal/services/notifications/storage"
	"github.com/louisbranch/conquest.space/internal/services/notifications/storage/sqlite/migrations"
)

// Store provides SQLite-backed persistence for notifications state.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.NotificationStore = (*Store)(nil)

// Open opens a notifications SQLite store at the provided path.
func Open(path string) (*Store, error) {
	sqlDB, err := sqliteconn.Open(path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// InsertNotification persists one notification row, ignoring duplicates of
// the (recipient, battle, faction, message type) tuple.
func (s *Store) InsertNotification(ctx context.Context, record storage.NotificationRecord) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	normalized, err := normalizeNotificationRecord(record)
	if err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO battle_notifications (
    id, recipient_user_id, battle_id, faction_id, message_type, payload_json, created_at, read_at
) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
`,
		normalized.ID,
		normalized.RecipientUserID,
		normalized.BattleID,
		normalized.FactionID,
		normalized.MessageType,
		normalized.PayloadJSON,
		sqliteconn.ToMillis(normalized.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification rows affected: %w", err)
	}
	return affected == 1, nil
}

func normalizeNotificationRecord(record storage.NotificationRecord) (storage.NotificationRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.RecipientUserID = strings.TrimSpace(record.RecipientUserID)
	record.BattleID = strings.TrimSpace(record.BattleID)
	record.FactionID = strings.TrimSpace(record.FactionID)
	record.MessageType = strings.TrimSpace(record.MessageType)
	record.PayloadJSON = strings.TrimSpace(record.PayloadJSON)
	switch {
	case record.ID == "":
		return storage.NotificationRecord{}, fmt.Errorf("notification id is required")
	case record.RecipientUserID == "":
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	case record.BattleID == "":
		return storage.NotificationRecord{}, fmt.Errorf("battle id is required")
	case record.FactionID == "":
		return storage.NotificationRecord{}, fmt.Errorf("faction id is required")
	case record.MessageType == "":
		return storage.NotificationRecord{}, fmt.Errorf("message type is required")
	case record.CreatedAt.IsZero():
		return storage.NotificationRecord{}, fmt.Errorf("created at is required")
	}
	if record.PayloadJSON == "" {
		record.PayloadJSON = "{}"
	}
	return record, nil
}

const notificationColumns = `id, recipient_user_id, battle_id, faction_id, message_type, payload_json, created_at, read_at`

// ListNotificationsByRecipient lists one recipient inbox newest-first with cursor pagination.
func (s *Store) ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (storage.NotificationPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NotificationPage{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	pageToken = strings.TrimSpace(pageToken)
	if recipientUserID == "" {
		return storage.NotificationPage{}, fmt.Errorf("recipient user id is required")
	}
	if pageSize <= 0 {
		return storage.NotificationPage{}, fmt.Errorf("page size must be greater than zero")
	}

	limit := pageSize + 1
	if pageToken == "" {
		rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM battle_notifications
WHERE recipient_user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, limit)
		if err != nil {
			return storage.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
		}
		defer rows.Close()
		return collectNotificationPage(rows, pageSize)
	}

	tokenCreatedAt, err := s.notificationCreatedAtByID(ctx, recipientUserID, pageToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.NotificationPage{}, nil
		}
		return storage.NotificationPage{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM battle_notifications
WHERE recipient_user_id = ?
  AND (created_at < ? OR (created_at = ? AND id < ?))
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, sqliteconn.ToMillis(tokenCreatedAt), sqliteconn.ToMillis(tokenCreatedAt), pageToken, limit)
	if err != nil {
		return storage.NotificationPage{}, fmt.Errorf("list notifications with token: %w", err)
	}
	defer rows.Close()
	return collectNotificationPage(rows, pageSize)
}

func (s *Store) notificationCreatedAtByID(ctx context.Context, recipientUserID string, notificationID string) (time.Time, error) {
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT created_at FROM battle_notifications WHERE recipient_user_id = ? AND id = ?
`, recipientUserID, notificationID).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("load page token notification: %w", err)
	}
	return sqliteconn.FromMillis(createdAt), nil
}

func collectNotificationPage(rows *sql.Rows, pageSize int) (storage.NotificationPage, error) {
	records := make([]storage.NotificationRecord, 0, pageSize+1)
	for rows.Next() {
		record, err := scanNotification(rows.Scan)
		if err != nil {
			return storage.NotificationPage{}, fmt.Errorf("scan notification row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return storage.NotificationPage{}, fmt.Errorf("iterate notification rows: %w", err)
	}
	page := storage.NotificationPage{Notifications: records}
	if len(records) > pageSize {
		page.Notifications = records[:pageSize]
		page.NextPageToken = records[pageSize-1].ID
	}
	return page, nil
}

func scanNotification(scan func(dest ...any) error) (storage.NotificationRecord, error) {
	var (
		record    storage.NotificationRecord
		createdAt int64
		readAt    sql.NullInt64
	)
	if err := scan(
		&record.ID,
		&record.RecipientUserID,
		&record.BattleID,
		&record.FactionID,
		&record.MessageType,
		&record.PayloadJSON,
		&createdAt,
		&readAt,
	); err != nil {
		return storage.NotificationRecord{}, err
	}
	record.CreatedAt = sqliteconn.FromMillis(createdAt)
	record.ReadAt = sqliteconn.TimePtr(readAt)
	return record, nil
}

// CountUnreadNotificationsByRecipient returns unread inbox count for one recipient.
func (s *Store) CountUnreadNotificationsByRecipient(ctx context.Context, recipientUserID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, fmt.Errorf("recipient user id is required")
	}
	var unread int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM battle_notifications WHERE recipient_user_id = ? AND read_at IS NULL
`, recipientUserID).Scan(&unread); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return unread, nil
}

// MarkNotificationRead marks one notification row as read for a recipient.
// Marking an already read notification keeps the first read time.
func (s *Store) MarkNotificationRead(ctx context.Context, recipientUserID string, notificationID string, readAt time.Time) (storage.NotificationRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NotificationRecord{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	}
	if notificationID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("notification id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
UPDATE battle_notifications
SET read_at = COALESCE(read_at, ?)
WHERE recipient_user_id = ? AND id = ?
RETURNING `+notificationColumns,
		sqliteconn.ToMillis(readAt), recipientUserID, notificationID)
	record, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("mark notification read: %w", err)
	}
	return record, nil
}
