// Package connector normalizes Slack channel content into
// platform-agnostic content items and drives incremental, cursor-tracked
// sync passes over configured channels.
package connector

import (
	"time"
)

// ItemType discriminates the two kinds of content item the connector
// produces.
type ItemType string

const (
	ItemTypeMessage ItemType = "message"
	ItemTypeThread  ItemType = "thread"
)

// Participant roles.
const (
	RoleAuthor      = "author"
	RoleParticipant = "participant"
)

// Participant is one person involved in a content item.
type Participant struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

// RawContentItem is the canonical normalized unit handed to the content
// repository. It is immutable once returned; re-syncing the same
// ExternalID must be safe to upsert by (sourceID, ExternalID).
type RawContentItem struct {
	ExternalID         string         `json:"external_id"`
	Type               ItemType       `json:"type"`
	Title              string         `json:"title"`
	Content            string         `json:"content"`
	AuthorExternalID   string         `json:"author_external_id,omitempty"`
	AuthorName         string         `json:"author_name,omitempty"`
	CreatedAtSource    time.Time      `json:"created_at_source"`
	UpdatedAtSource    time.Time      `json:"updated_at_source"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Participants       []Participant  `json:"participants,omitempty"`
	RelatedExternalIDs []string       `json:"related_external_ids,omitempty"`
}

// UserInfo is one entry in the user directory.
type UserInfo struct {
	DisplayName string `json:"display_name"`
	RealName    string `json:"real_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// UserDirectory maps external user ids to profile data. Absent entries
// degrade to the raw id as display name.
type UserDirectory map[string]UserInfo

// DisplayName resolves an id, reporting whether the directory knew it.
func (d UserDirectory) DisplayName(id string) (string, bool) {
	info, ok := d[id]
	if !ok {
		return id, false
	}
	name := info.DisplayName
	if name == "" {
		name = info.RealName
	}
	if name == "" {
		return id, false
	}
	return name, true
}

// Names flattens the directory into the lookup table the mrkdwn resolver
// consumes.
func (d UserDirectory) Names() map[string]string {
	names := make(map[string]string, len(d))
	for id := range d {
		if name, ok := d.DisplayName(id); ok {
			names[id] = name
		}
	}
	return names
}

// SourceConfig is the per-source sync configuration.
type SourceConfig struct {
	// Channels is the list of channel ids to sync. Empty means nothing
	// to do, not an error.
	Channels []string
	// ExcludeBots drops bot-authored messages from sync.
	ExcludeBots bool
	// SyncFiles enables attachment download and storage.
	SyncFiles bool
	// DisableThreadSync treats thread roots as plain messages.
	DisableThreadSync bool
	// StoragePrefix is the first segment of attachment storage keys.
	StoragePrefix string
}

// Source identifies one connected Slack workspace.
type Source struct {
	ID     string
	Name   string
	Token  string
	Config SourceConfig
}

// SyncOptions bounds one FetchContent pass.
type SyncOptions struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Cursor string
}

// SyncResult is the outcome of one FetchContent pass.
type SyncResult struct {
	Items      []RawContentItem `json:"items"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ChannelSyncState is the persisted per-(source, channel) watermark.
// Created on first successful sync of a channel, updated after each pass.
type ChannelSyncState struct {
	SourceID     string    `json:"source_id"`
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name,omitempty"`
	ChannelType  string    `json:"channel_type,omitempty"`
	LastCursor   string    `json:"last_cursor,omitempty"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}
