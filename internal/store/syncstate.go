package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldline/slacksync/internal/connector"
)

// GetChannelSyncState reads the watermark for one channel, or nil when the
// channel has never completed a sync.
func (s *Store) GetChannelSyncState(ctx context.Context, sourceID, channelID string) (*connector.ChannelSyncState, error) {
	state := &connector.ChannelSyncState{}
	var name, chType, cursor sql.NullString

	err := s.conn.QueryRowContext(ctx, `
		SELECT source_id, channel_id, channel_name, channel_type, last_cursor, last_synced_at
		FROM channel_sync_state
		WHERE source_id = ? AND channel_id = ?
	`, sourceID, channelID).Scan(
		&state.SourceID, &state.ChannelID, &name, &chType, &cursor, &state.LastSyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel sync state: %w", err)
	}

	state.ChannelName = name.String
	state.ChannelType = chType.String
	state.LastCursor = cursor.String
	return state, nil
}

// UpdateChannelSyncState upserts the watermark after a pass.
func (s *Store) UpdateChannelSyncState(ctx context.Context, state connector.ChannelSyncState) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO channel_sync_state (
			source_id, channel_id, channel_name, channel_type, last_cursor, last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, channel_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			channel_type = excluded.channel_type,
			last_cursor = excluded.last_cursor,
			last_synced_at = excluded.last_synced_at
	`, state.SourceID, state.ChannelID, state.ChannelName, state.ChannelType,
		state.LastCursor, state.LastSyncedAt)

	if err != nil {
		return fmt.Errorf("failed to update channel sync state: %w", err)
	}
	return nil
}

// ListChannelSyncStates returns every channel watermark for a source.
func (s *Store) ListChannelSyncStates(ctx context.Context, sourceID string) ([]*connector.ChannelSyncState, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT source_id, channel_id, channel_name, channel_type, last_cursor, last_synced_at
		FROM channel_sync_state
		WHERE source_id = ?
		ORDER BY channel_id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel sync states: %w", err)
	}
	defer rows.Close()

	states := []*connector.ChannelSyncState{}
	for rows.Next() {
		state := &connector.ChannelSyncState{}
		var name, chType, cursor sql.NullString
		err := rows.Scan(&state.SourceID, &state.ChannelID, &name, &chType, &cursor, &state.LastSyncedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel sync state: %w", err)
		}
		state.ChannelName = name.String
		state.ChannelType = chType.String
		state.LastCursor = cursor.String
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel sync states: %w", err)
	}
	return states, nil
}
