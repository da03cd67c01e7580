package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldline/slacksync/internal/connector"
	"github.com/fieldline/slacksync/internal/slack"
)

// SaveUsers upserts a user directory snapshot for one source.
func (s *Store) SaveUsers(ctx context.Context, sourceID string, users []slack.User) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO users (
			source_id, external_id, display_name, real_name, email, is_bot, deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, external_id) DO UPDATE SET
			display_name = excluded.display_name,
			real_name = excluded.real_name,
			email = excluded.email,
			is_bot = excluded.is_bot,
			deleted = excluded.deleted,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare user upsert: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		realName := u.Profile.RealName
		if realName == "" {
			realName = u.RealName
		}
		_, err := stmt.ExecContext(ctx, sourceID, u.ID, u.Profile.DisplayName,
			realName, u.Profile.Email, u.IsBot, u.Deleted)
		if err != nil {
			return fmt.Errorf("failed to save user %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user directory: %w", err)
	}
	return nil
}

// Directory loads the stored user directory for a source. Deleted users
// are excluded so stale ids degrade to raw-id display names.
func (s *Store) Directory(ctx context.Context, sourceID string) (connector.UserDirectory, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT external_id, display_name, real_name, email
		FROM users
		WHERE source_id = ? AND deleted = 0
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user directory: %w", err)
	}
	defer rows.Close()

	directory := connector.UserDirectory{}
	for rows.Next() {
		var id string
		var displayName, realName, email sql.NullString
		if err := rows.Scan(&id, &displayName, &realName, &email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		directory[id] = connector.UserInfo{
			DisplayName: displayName.String,
			RealName:    realName.String,
			Email:       email.String,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return directory, nil
}
