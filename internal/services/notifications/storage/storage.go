// Package storage defines persistence contracts for battle notifications.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested notification is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// NotificationRecord stores one battle notification inbox item.
type NotificationRecord struct {
	ID              string
	RecipientUserID string
	BattleID        string
	FactionID       string
	MessageType     string
	PayloadJSON     string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage stores a paged inbox listing result.
type NotificationPage struct {
	Notifications []NotificationRecord
	NextPageToken string
}

// NotificationStore persists notification inbox state.
type NotificationStore interface {
	// InsertNotification stores record unless one already exists for the same
	// recipient, battle, faction and message type. inserted is false for a
	// duplicate.
	InsertNotification(ctx context.Context, record NotificationRecord) (inserted bool, err error)
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (NotificationPage, error)
	CountUnreadNotificationsByRecipient(ctx context.Context, recipientUserID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientUserID string, notificationID string, readAt time.Time) (NotificationRecord, error)
}
