package connector

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldline/slacksync/internal/attachment"
	"github.com/fieldline/slacksync/internal/mrkdwn"
	"github.com/fieldline/slacksync/internal/slack"
)

const threadTitleLen = 40

const transcriptSeparator = "\n\n---\n\n"

// AggregatedReaction is one reaction name unioned across every message in
// a thread: counts sum, reactor sets union (duplicates collapse).
type AggregatedReaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// ThreadInput carries a root message and its replies into aggregation.
// Attachments arrive already processed over the combined file list.
type ThreadInput struct {
	Root         slack.Message
	Replies      []slack.Message
	Channel      slack.Channel
	Users        UserDirectory
	ChannelNames map[string]string
	Permalink    string
	Attachments  []attachment.Result
}

// ThreadFiles returns the combined attachment list for a thread: the
// root's files first, then each reply's in chronological order. The
// orchestrator runs the attachment pipeline over this list once.
func ThreadFiles(root slack.Message, replies []slack.Message) []slack.File {
	ordered := orderThread(root, replies)
	var files []slack.File
	files = append(files, root.Files...)
	for _, m := range ordered {
		if m.TS == root.TS {
			continue
		}
		files = append(files, m.Files...)
	}
	return files
}

// AggregateThread merges a root message and its replies into one content
// item of type thread. Zero replies still produce a thread: the call
// itself implies thread semantics.
func AggregateThread(in ThreadInput) RawContentItem {
	ordered := orderThread(in.Root, in.Replies)

	rootAuthor := authorID(in.Root)
	rootName, _ := in.Users.DisplayName(rootAuthor)
	rootText := mrkdwn.Resolve(in.Root.Text, in.Users.Names(), in.ChannelNames)

	replyCount := in.Root.ReplyCount
	if replyCount == 0 {
		replyCount = len(in.Replies)
	}

	item := RawContentItem{
		ExternalID:       in.Root.TS,
		Type:             ItemTypeThread,
		Title:            fmt.Sprintf("%s in #%s: %s (%d replies)", rootName, in.Channel.Name, truncate(rootText, threadTitleLen), replyCount),
		Content:          transcript(ordered, in.Users, in.ChannelNames),
		AuthorExternalID: rootAuthor,
		AuthorName:       rootName,
		CreatedAtSource:  tsTime(in.Root.TS),
		UpdatedAtSource:  tsTime(ordered[len(ordered)-1].TS),
		Participants:     threadParticipants(ordered, rootAuthor, in.Users),
		Metadata:         threadMetadata(in, ordered, replyCount),
	}

	for _, m := range ordered {
		if m.TS != in.Root.TS {
			item.RelatedExternalIDs = append(item.RelatedExternalIDs, m.TS)
		}
	}

	return item
}

// orderThread sorts root+replies ascending by timestamp. Timestamps are
// unique in practice; a stable sort preserves input order on ties.
func orderThread(root slack.Message, replies []slack.Message) []slack.Message {
	ordered := make([]slack.Message, 0, len(replies)+1)
	ordered = append(ordered, root)
	ordered = append(ordered, replies...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return tsLess(ordered[i].TS, ordered[j].TS)
	})
	return ordered
}

// transcript renders the combined readable text of a thread.
func transcript(ordered []slack.Message, users UserDirectory, channelNames map[string]string) string {
	userNames := users.Names()
	blocks := make([]string, 0, len(ordered))
	for _, m := range ordered {
		name, _ := users.DisplayName(authorID(m))
		stamp := tsTime(m.TS).UTC().Format(time.RFC3339)
		text := mrkdwn.Resolve(m.Text, userNames, channelNames)
		blocks = append(blocks, fmt.Sprintf("**%s** (%s):\n%s", name, stamp, text))
	}
	return strings.Join(blocks, transcriptSeparator)
}

// threadParticipants de-duplicates message authors in first-appearance
// order. The thread root's author is the author; everyone else is a
// participant.
func threadParticipants(ordered []slack.Message, rootAuthor string, users UserDirectory) []Participant {
	seen := make(map[string]bool, len(ordered))
	var participants []Participant
	for _, m := range ordered {
		id := authorID(m)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		name, _ := users.DisplayName(id)
		role := RoleParticipant
		if id == rootAuthor {
			role = RoleAuthor
		}
		participants = append(participants, Participant{ExternalID: id, Name: name, Role: role})
	}
	return participants
}

// aggregateReactions unions reactions across a thread by name, in
// first-appearance order.
func aggregateReactions(ordered []slack.Message) []AggregatedReaction {
	index := map[string]int{}
	var aggregated []AggregatedReaction
	seenUsers := map[string]map[string]bool{}

	for _, m := range ordered {
		for _, r := range m.Reactions {
			i, ok := index[r.Name]
			if !ok {
				i = len(aggregated)
				index[r.Name] = i
				aggregated = append(aggregated, AggregatedReaction{Name: r.Name})
				seenUsers[r.Name] = map[string]bool{}
			}
			aggregated[i].Count += r.Count
			for _, u := range r.Users {
				if !seenUsers[r.Name][u] {
					seenUsers[r.Name][u] = true
					aggregated[i].Users = append(aggregated[i].Users, u)
				}
			}
		}
	}
	return aggregated
}

func threadMetadata(in ThreadInput, ordered []slack.Message, replyCount int) map[string]any {
	md := map[string]any{
		"channel_id":    in.Channel.ID,
		"channel_name":  in.Channel.Name,
		"channel_type":  channelType(in.Channel),
		"ts":            in.Root.TS,
		"thread_ts":     in.Root.TS,
		"reply_count":   replyCount,
		"message_count": len(ordered),
	}
	if reactions := aggregateReactions(ordered); len(reactions) > 0 {
		md["reactions"] = reactions
	}
	if len(in.Attachments) > 0 {
		md["attachments"] = in.Attachments
	}
	if in.Permalink != "" {
		md["permalink"] = in.Permalink
	}
	return md
}

// authorID prefers the user id, falling back to the bot id.
func authorID(m slack.Message) string {
	if m.User != "" {
		return m.User
	}
	return m.BotID
}
