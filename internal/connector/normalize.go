package connector

import (
	"fmt"
	"time"

	"github.com/fieldline/slacksync/internal/attachment"
	"github.com/fieldline/slacksync/internal/mrkdwn"
	"github.com/fieldline/slacksync/internal/slack"
)

const messageTitleLen = 50

// NormalizeInput carries one raw message plus the per-pass lookup context
// into normalization. Attachments arrive already processed so the
// normalizer stays pure.
type NormalizeInput struct {
	Message      slack.Message
	Channel      slack.Channel
	Users        UserDirectory
	ChannelNames map[string]string
	Permalink    string
	Attachments  []attachment.Result
}

// NormalizeMessage maps one raw message into a canonical content item.
// Subtype filtering happens upstream in the orchestrator; by the time a
// message reaches here it is real content.
func NormalizeMessage(in NormalizeInput) RawContentItem {
	msg := in.Message
	text := mrkdwn.Resolve(msg.Text, in.Users.Names(), in.ChannelNames)

	authorID := msg.User
	if authorID == "" {
		authorID = msg.BotID
	}
	authorName, resolved := in.Users.DisplayName(authorID)

	createdAt := tsTime(msg.TS)
	updatedAt := createdAt
	if msg.Edited != nil && msg.Edited.TS != "" {
		updatedAt = tsTime(msg.Edited.TS)
	}

	item := RawContentItem{
		ExternalID:       msg.TS,
		Type:             ItemTypeMessage,
		Title:            messageTitle(msg, authorName, in.Channel.Name, text),
		Content:          text,
		AuthorExternalID: authorID,
		AuthorName:       authorName,
		CreatedAtSource:  createdAt,
		UpdatedAtSource:  updatedAt,
		Metadata:         messageMetadata(msg, in.Channel, in.Permalink, in.Attachments),
	}

	// Only resolvable authors become participants; an unknown author is
	// not an error, just absent.
	if resolved {
		item.Participants = []Participant{{
			ExternalID: authorID,
			Name:       authorName,
			Role:       RoleAuthor,
		}}
	}

	return item
}

// messageTitle synthesizes the human-readable title for a single message.
func messageTitle(msg slack.Message, authorName, channelName, text string) string {
	if msg.ReplyCount > 0 {
		return fmt.Sprintf("Thread: %s (%d replies)", truncate(text, messageTitleLen), msg.ReplyCount)
	}
	return fmt.Sprintf("%s in #%s: %s", authorName, channelName, truncate(text, messageTitleLen))
}

// messageMetadata builds the source-specific metadata bag.
func messageMetadata(msg slack.Message, ch slack.Channel, permalink string, atts []attachment.Result) map[string]any {
	md := map[string]any{
		"channel_id":   ch.ID,
		"channel_name": ch.Name,
		"channel_type": channelType(ch),
		"ts":           msg.TS,
	}
	if msg.ThreadTS != "" {
		md["thread_ts"] = msg.ThreadTS
	}
	if len(msg.Reactions) > 0 {
		md["reactions"] = msg.Reactions
	}
	if len(atts) > 0 {
		md["attachments"] = atts
	}
	if msg.Edited != nil {
		md["edited"] = true
	}
	if msg.ReplyCount > 0 {
		md["reply_count"] = msg.ReplyCount
	}
	if msg.ReplyUsersCount > 0 {
		md["reply_users_count"] = msg.ReplyUsersCount
	}
	if permalink != "" {
		md["permalink"] = permalink
	}
	return md
}

func channelType(ch slack.Channel) string {
	if ch.IsPrivate {
		return "private_channel"
	}
	return "public_channel"
}

// tsTime parses a Slack timestamp, degrading to the zero time for
// malformed input rather than failing normalization.
func tsTime(ts string) time.Time {
	t, err := ParseTS(ts)
	if err != nil {
		return time.Time{}
	}
	return t
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
