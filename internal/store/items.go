package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldline/slacksync/internal/connector"
)

// SaveItem upserts one normalized item keyed by (source, external id).
func (s *Store) SaveItem(ctx context.Context, sourceID string, item connector.RawContentItem) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	participants, err := json.Marshal(item.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	related, err := json.Marshal(item.RelatedExternalIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal related ids: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO items (
			source_id, external_id, type, title, content,
			author_external_id, author_name, created_at_source, updated_at_source,
			metadata, participants, related_external_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, external_id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			content = excluded.content,
			author_external_id = excluded.author_external_id,
			author_name = excluded.author_name,
			updated_at_source = excluded.updated_at_source,
			metadata = excluded.metadata,
			participants = excluded.participants,
			related_external_ids = excluded.related_external_ids,
			synced_at = CURRENT_TIMESTAMP
	`, sourceID, item.ExternalID, string(item.Type), item.Title, item.Content,
		item.AuthorExternalID, item.AuthorName, item.CreatedAtSource, item.UpdatedAtSource,
		metadata, participants, related)

	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// GetItem retrieves one item, or nil when absent.
func (s *Store) GetItem(ctx context.Context, sourceID, externalID string) (*connector.RawContentItem, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT external_id, type, title, content,
		       author_external_id, author_name, created_at_source, updated_at_source,
		       metadata, participants, related_external_ids
		FROM items
		WHERE source_id = ? AND external_id = ?
	`, sourceID, externalID)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// SelectItemsOptions filters a SelectItems query.
type SelectItemsOptions struct {
	SourceID string
	Type     string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// SelectItems queries items with filters, newest first.
func (s *Store) SelectItems(ctx context.Context, opts SelectItemsOptions) ([]*connector.RawContentItem, error) {
	query := `
		SELECT external_id, type, title, content,
		       author_external_id, author_name, created_at_source, updated_at_source,
		       metadata, participants, related_external_ids
		FROM items
		WHERE source_id = ?
	`
	args := []any{opts.SourceID}

	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, opts.Type)
	}
	if opts.Since != nil {
		query += " AND created_at_source >= ?"
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		query += " AND created_at_source <= ?"
		args = append(args, *opts.Until)
	}

	query += " ORDER BY created_at_source DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	items := []*connector.RawContentItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*connector.RawContentItem, error) {
	item := &connector.RawContentItem{}
	var itemType string
	var authorID, authorName sql.NullString
	var metadata, participants, related string

	err := row.Scan(
		&item.ExternalID, &itemType, &item.Title, &item.Content,
		&authorID, &authorName, &item.CreatedAtSource, &item.UpdatedAtSource,
		&metadata, &participants, &related,
	)
	if err != nil {
		return nil, err
	}

	item.Type = connector.ItemType(itemType)
	item.AuthorExternalID = authorID.String
	item.AuthorName = authorName.String

	if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(participants), &item.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(related), &item.RelatedExternalIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal related ids: %w", err)
	}

	return item, nil
}
