package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/conquest.space/internal/platform/storage/sqliteconn"
	"github.com/louisbranch/conquest.space/internal/services/battle/storage"
)

// EnsureUser returns the user id bound to subject, provisioning it with
// candidateID on first sight.
func (s *Store) EnsureUser(ctx context.Context, subject string, candidateID string, now time.Time) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	subject = strings.TrimSpace(subject)
	candidateID = strings.TrimSpace(candidateID)
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if candidateID == "" {
		return "", fmt.Errorf("candidate user id is required")
	}
	var userID string
	err := sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, auth_subject, created_at) VALUES (?, ?, ?)
ON CONFLICT(auth_subject) DO NOTHING
`, candidateID, subject, sqliteconn.ToMillis(now)); err != nil {
			return fmt.Errorf("provision user: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM users WHERE auth_subject = ?`, subject).Scan(&userID)
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func requireUser(ctx context.Context, q queryer, userID string) error {
	if userID == "" {
		return storage.ErrUserNotFound
	}
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	return nil
}

// GetMembership loads the faction a user belongs to.
func (s *Store) GetMembership(ctx context.Context, userID string) (storage.Membership, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Membership{}, err
	}
	var (
		m        storage.Membership
		role     string
		joinedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT faction_id, user_id, role, joined_at FROM faction_members WHERE user_id = ?
`, strings.TrimSpace(userID)).Scan(&m.FactionID, &m.UserID, &role, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Membership{}, storage.ErrNotFound
		}
		return storage.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	m.Role = storage.Role(role)
	m.JoinedAt = sqliteconn.FromMillis(joinedAt)
	return m, nil
}

// ListFactionMembers lists a faction's members in join order.
func (s *Store) ListFactionMembers(ctx context.Context, factionID string) ([]storage.Membership, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT faction_id, user_id, role, joined_at FROM faction_members
WHERE faction_id = ?
ORDER BY joined_at, user_id
`, strings.TrimSpace(factionID))
	if err != nil {
		return nil, fmt.Errorf("list faction members: %w", err)
	}
	defer rows.Close()
	var members []storage.Membership
	for rows.Next() {
		var (
			m        storage.Membership
			role     string
			joinedAt int64
		)
		if err := rows.Scan(&m.FactionID, &m.UserID, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan faction member: %w", err)
		}
		m.Role = storage.Role(role)
		m.JoinedAt = sqliteconn.FromMillis(joinedAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faction members: %w", err)
	}
	return members, nil
}

// PutMembership adds a user to a faction or changes their role. A user that
// already belongs to another faction returns storage.ErrConflict.
func (s *Store) PutMembership(ctx context.Context, membership storage.Membership) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	factionID := strings.TrimSpace(membership.FactionID)
	userID := strings.TrimSpace(membership.UserID)
	if factionID == "" {
		return fmt.Errorf("faction id is required")
	}
	if !membership.Role.Valid() {
		return fmt.Errorf("invalid role %q", membership.Role)
	}
	return sqliteconn.InTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO faction_members (faction_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
ON CONFLICT(faction_id, user_id) DO UPDATE SET role = excluded.role
`, factionID, userID, string(membership.Role), sqliteconn.ToMillis(membership.JoinedAt)); err != nil {
			if sqliteconn.IsUniqueConstraint(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("put membership: %w", err)
		}
		return nil
	})
}

// MedalCount returns the total number of medals a user holds.
func (s *Store) MedalCount(ctx context.Context, userID string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return medalCount(ctx, s.sqlDB, strings.TrimSpace(userID))
}

func medalCount(ctx context.Context, q queryer, userID string) (int64, error) {
	var count int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(count), 0) FROM medals WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count medals: %w", err)
	}
	return count, nil
}

func awardMedalTx(ctx context.Context, tx *sql.Tx, userID string, medal string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO medals (user_id, medal, count, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT(user_id, medal) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
`, userID, medal, sqliteconn.ToMillis(at)); err != nil {
		return fmt.Errorf("award medal: %w", err)
	}
	return nil
}
