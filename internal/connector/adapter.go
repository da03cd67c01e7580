package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldline/slacksync/internal/attachment"
	"github.com/fieldline/slacksync/internal/slack"
)

// defaultPageLimit bounds a history page when the caller does not.
const defaultPageLimit = 50

// SlackAPI is the client surface the orchestrator consumes.
type SlackAPI interface {
	AuthTest(ctx context.Context, token string) (*slack.Identity, error)
	ListChannels(ctx context.Context, token, types string) ([]slack.Channel, error)
	ChannelInfo(ctx context.Context, token, channelID string) (*slack.Channel, error)
	History(ctx context.Context, token string, p slack.HistoryParams) (*slack.HistoryPage, error)
	Replies(ctx context.Context, token, channelID, threadTS string) ([]slack.Message, error)
	ListUsers(ctx context.Context, token string) ([]slack.User, error)
	Permalink(ctx context.Context, token, channelID, messageTS string) (string, error)
	Download(ctx context.Context, token, url string) ([]byte, error)
}

// UserDirectoryProvider supplies and persists the per-source user
// directory.
type UserDirectoryProvider interface {
	Directory(ctx context.Context, sourceID string) (UserDirectory, error)
	SaveUsers(ctx context.Context, sourceID string, users []slack.User) error
}

// SyncStateStore persists per-channel watermarks. The adapter only
// delegates; the watermark is owned by the caller's repository.
type SyncStateStore interface {
	GetChannelSyncState(ctx context.Context, sourceID, channelID string) (*ChannelSyncState, error)
	UpdateChannelSyncState(ctx context.Context, state ChannelSyncState) error
}

// Adapter is the Slack content-source adapter: bulk incremental pull,
// point lookup, and real-time event relay, all producing RawContentItems.
// Channels are processed sequentially within one call to stay inside the
// per-token rate limit; only attachment transfers fan out.
type Adapter struct {
	api      SlackAPI
	pipeline *attachment.Pipeline
	users    UserDirectoryProvider
	state    SyncStateStore
	log      *zap.Logger
	// runID tags this adapter's uploads so blobs can be traced back to
	// the pass that stored them.
	runID string
}

// NewAdapter wires the orchestrator. A nil logger disables logging.
func NewAdapter(api SlackAPI, storage attachment.Storage, users UserDirectoryProvider, state SyncStateStore, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		api:      api,
		pipeline: attachment.New(api, storage, log),
		users:    users,
		state:    state,
		log:      log,
		runID:    uuid.NewString(),
	}
}

// orDefault is the degrade combinator: a sub-fetch that may fail and fall
// back to a default instead of aborting the pass. Applied at the four
// known degrade points: permalink, channel map, channel info during bulk
// fetch, and channel probing during point lookup.
func orDefault[T any](log *zap.Logger, what string, fallback T, fn func() (T, error)) T {
	v, err := fn()
	if err != nil {
		log.Debug("degraded sub-fetch", zap.String("fetch", what), zap.Error(err))
		return fallback
	}
	return v
}

// ValidateCredentials reports whether the source token is usable.
func (a *Adapter) ValidateCredentials(ctx context.Context, source Source) (bool, error) {
	if source.Token == "" {
		return false, nil
	}
	if _, err := a.api.AuthTest(ctx, source.Token); err != nil {
		var apiErr *slack.APIError
		if errors.As(err, &apiErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RefreshAuth is a passthrough: Slack tokens do not expire.
func (a *Adapter) RefreshAuth(_ context.Context, source Source) (string, error) {
	if source.Token == "" {
		return "", &AuthError{Message: "missing access token"}
	}
	return source.Token, nil
}

// passContext is the shared, read-only lookup context built once per call.
type passContext struct {
	users        UserDirectory
	channelNames map[string]string
}

// buildPassContext assembles the user directory snapshot and channel-name
// map. Both degrade to empty rather than aborting.
func (a *Adapter) buildPassContext(ctx context.Context, source Source) passContext {
	users := orDefault(a.log, "user directory", UserDirectory{}, func() (UserDirectory, error) {
		return a.users.Directory(ctx, source.ID)
	})
	channelNames := orDefault(a.log, "channel map", map[string]string{}, func() (map[string]string, error) {
		channels, err := a.api.ListChannels(ctx, source.Token, "")
		if err != nil {
			return nil, err
		}
		names := make(map[string]string, len(channels))
		for _, ch := range channels {
			names[ch.ID] = ch.Name
		}
		return names, nil
	})
	return passContext{users: users, channelNames: channelNames}
}

// permalinkFor looks up a message permalink best-effort.
func (a *Adapter) permalinkFor(ctx context.Context, token, channelID, ts string) string {
	return orDefault(a.log, "permalink", "", func() (string, error) {
		return a.api.Permalink(ctx, token, channelID, ts)
	})
}

// FetchContent runs one incremental pull across the configured channels.
// Per-channel failures skip that channel; the pass returns whatever
// succeeded.
func (a *Adapter) FetchContent(ctx context.Context, source Source, opts SyncOptions) (*SyncResult, error) {
	if source.Token == "" {
		return nil, &AuthError{Message: "missing access token"}
	}

	channels := source.Config.Channels
	if len(channels) == 0 {
		return &SyncResult{Items: []RawContentItem{}}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	pc := a.buildPassContext(ctx, source)
	cursorChannel, cursorTS, _ := ParseCursor(opts.Cursor)

	result := &SyncResult{Items: []RawContentItem{}}
	for _, channelID := range channels {
		info, err := a.api.ChannelInfo(ctx, source.Token, channelID)
		if err != nil {
			a.log.Warn("skipping channel: info lookup failed",
				zap.String("channel", channelID), zap.Error(err))
			continue
		}

		oldest := ""
		if cursorChannel == channelID {
			oldest = cursorTS
		}
		if opts.Since != nil {
			// Effective lower bound is the later of cursor and since.
			if sinceTS := FormatTS(*opts.Since); oldest == "" || tsLess(oldest, sinceTS) {
				oldest = sinceTS
			}
		}
		latest := ""
		if opts.Until != nil {
			latest = FormatTS(*opts.Until)
		}

		page, err := a.api.History(ctx, source.Token, slack.HistoryParams{
			Channel: channelID,
			Limit:   limit,
			Oldest:  oldest,
			Latest:  latest,
		})
		if err != nil {
			a.log.Warn("skipping channel: history fetch failed",
				zap.String("channel", channelID), zap.Error(err))
			continue
		}
		if page.HasMore {
			result.HasMore = true
		}

		for _, msg := range page.Messages {
			if msg.IsNoise() {
				continue
			}
			if source.Config.ExcludeBots && msg.IsBot() {
				continue
			}

			item, err := a.buildItem(ctx, source, *info, pc, msg)
			if err != nil {
				return nil, err
			}
			result.Items = append(result.Items, *item)
		}
	}

	if result.HasMore && len(result.Items) > 0 {
		last := result.Items[len(result.Items)-1]
		result.NextCursor = EncodeCursor(channels[0], last.ExternalID)
	}
	return result, nil
}

// buildItem dispatches one history message: thread roots aggregate their
// replies, everything else normalizes as a single message.
func (a *Adapter) buildItem(ctx context.Context, source Source, ch slack.Channel, pc passContext, msg slack.Message) (*RawContentItem, error) {
	if msg.ReplyCount > 0 && !source.Config.DisableThreadSync {
		return a.buildThread(ctx, source, ch, pc, msg.TS)
	}

	permalink := a.permalinkFor(ctx, source.Token, ch.ID, msg.TS)
	atts := a.processFiles(ctx, source, msg.Files)
	item := NormalizeMessage(NormalizeInput{
		Message:      msg,
		Channel:      ch,
		Users:        pc.users,
		ChannelNames: pc.channelNames,
		Permalink:    permalink,
		Attachments:  atts,
	})
	return &item, nil
}

// buildThread fetches a full thread and aggregates it into one item.
func (a *Adapter) buildThread(ctx context.Context, source Source, ch slack.Channel, pc passContext, threadTS string) (*RawContentItem, error) {
	msgs, err := a.api.Replies(ctx, source.Token, ch.ID, threadTS)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(msgs) == 0 {
		return nil, &SyncError{Endpoint: "conversations.replies", Message: fmt.Sprintf("thread %s returned no messages", threadTS)}
	}

	root := msgs[0]
	replies := make([]slack.Message, 0, len(msgs)-1)
	for _, m := range msgs[1:] {
		if m.TS == root.TS {
			continue
		}
		replies = append(replies, m)
	}

	permalink := a.permalinkFor(ctx, source.Token, ch.ID, root.TS)
	atts := a.processFiles(ctx, source, ThreadFiles(root, replies))
	item := AggregateThread(ThreadInput{
		Root:         root,
		Replies:      replies,
		Channel:      ch,
		Users:        pc.users,
		ChannelNames: pc.channelNames,
		Permalink:    permalink,
		Attachments:  atts,
	})
	return &item, nil
}

// processFiles runs the attachment pipeline over one unit's files.
func (a *Adapter) processFiles(ctx context.Context, source Source, files []slack.File) []attachment.Result {
	if len(files) == 0 {
		return nil
	}
	prefix := source.Config.StoragePrefix
	if prefix == "" {
		prefix = "slack"
	}
	return a.pipeline.Process(ctx, attachment.Request{
		Files:     files,
		Token:     source.Token,
		SourceID:  source.ID,
		KeyPrefix: prefix,
		SyncFiles: source.Config.SyncFiles,
		Metadata: map[string]string{
			"source_id": source.ID,
			"run_id":    a.runID,
		},
	})
}

// FetchItem looks up one item by external id (a message timestamp),
// probing each configured channel's thread endpoint. More than one
// returned message aggregates as a thread, exactly one normalizes as a
// message, none yields an absent result.
func (a *Adapter) FetchItem(ctx context.Context, source Source, externalID string) (*RawContentItem, error) {
	if source.Token == "" {
		return nil, &AuthError{Message: "missing access token"}
	}

	pc := a.buildPassContext(ctx, source)

	for _, channelID := range source.Config.Channels {
		msgs := orDefault(a.log, "channel probe", nil, func() ([]slack.Message, error) {
			return a.api.Replies(ctx, source.Token, channelID, externalID)
		})
		if len(msgs) == 0 {
			continue
		}

		ch := orDefault(a.log, "channel info", &slack.Channel{ID: channelID}, func() (*slack.Channel, error) {
			return a.api.ChannelInfo(ctx, source.Token, channelID)
		})

		if len(msgs) > 1 {
			root, replies := msgs[0], msgs[1:]
			permalink := a.permalinkFor(ctx, source.Token, ch.ID, root.TS)
			atts := a.processFiles(ctx, source, ThreadFiles(root, replies))
			item := AggregateThread(ThreadInput{
				Root:         root,
				Replies:      replies,
				Channel:      *ch,
				Users:        pc.users,
				ChannelNames: pc.channelNames,
				Permalink:    permalink,
				Attachments:  atts,
			})
			return &item, nil
		}

		msg := msgs[0]
		permalink := a.permalinkFor(ctx, source.Token, ch.ID, msg.TS)
		atts := a.processFiles(ctx, source, msg.Files)
		item := NormalizeMessage(NormalizeInput{
			Message:      msg,
			Channel:      *ch,
			Users:        pc.users,
			ChannelNames: pc.channelNames,
			Permalink:    permalink,
			Attachments:  atts,
		})
		return &item, nil
	}

	return nil, nil
}

// HandleEvent normalizes one inbound real-time event into a content item,
// or an absent result for events the connector ignores. Callers only ever
// observe the SyncError family from this entry point.
func (a *Adapter) HandleEvent(ctx context.Context, source Source, raw json.RawMessage) (*RawContentItem, error) {
	switch ev := DecodeEvent(raw).(type) {
	case ReactionEvent:
		return a.handleReactionEvent(ctx, source, ev)
	case MessageEvent:
		return a.handleMessageEvent(ctx, source, ev)
	default:
		return nil, nil
	}
}

// handleReactionEvent re-fetches the reacted-to message; the reaction
// payload alone cannot rebuild the item.
func (a *Adapter) handleReactionEvent(ctx context.Context, source Source, ev ReactionEvent) (*RawContentItem, error) {
	if ev.Channel == "" || ev.TS == "" {
		return nil, nil
	}

	item, err := a.FetchItem(ctx, source, ev.TS)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, &SyncError{Message: authErr.Message, Err: err}
		}
		return nil, err
	}
	return item, nil
}

// handleMessageEvent re-renders the containing thread for replies, since
// the transcript and reaction unions are thread-wide, and normalizes bare
// messages as single items.
func (a *Adapter) handleMessageEvent(ctx context.Context, source Source, ev MessageEvent) (*RawContentItem, error) {
	if ev.Channel == "" || ev.TS == "" {
		return nil, nil
	}
	if ev.Subtype != "" && ev.Subtype != slack.SubtypeThreadBroadcast {
		return nil, nil
	}

	pc := a.buildPassContext(ctx, source)
	ch := orDefault(a.log, "channel info", &slack.Channel{ID: ev.Channel}, func() (*slack.Channel, error) {
		return a.api.ChannelInfo(ctx, source.Token, ev.Channel)
	})

	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		item, err := a.buildThread(ctx, source, *ch, pc, ev.ThreadTS)
		if err != nil {
			return nil, err
		}
		return item, nil
	}

	page, err := a.api.History(ctx, source.Token, slack.HistoryParams{
		Channel:   ev.Channel,
		Oldest:    ev.TS,
		Latest:    ev.TS,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(page.Messages) == 0 {
		return nil, nil
	}

	return a.buildItem(ctx, source, *ch, pc, page.Messages[0])
}

// ListChannels returns every channel visible to the source token.
func (a *Adapter) ListChannels(ctx context.Context, source Source) ([]slack.Channel, error) {
	if source.Token == "" {
		return nil, &AuthError{Message: "missing access token"}
	}
	channels, err := a.api.ListChannels(ctx, source.Token, "")
	if err != nil {
		return nil, wrapAPIError(err)
	}
	return channels, nil
}

// SyncUsers fetches the workspace user directory and persists it for
// later passes. Returns the number of users stored.
func (a *Adapter) SyncUsers(ctx context.Context, source Source) (int, error) {
	if source.Token == "" {
		return 0, &AuthError{Message: "missing access token"}
	}

	users, err := a.api.ListUsers(ctx, source.Token)
	if err != nil {
		return 0, wrapAPIError(err)
	}
	if err := a.users.SaveUsers(ctx, source.ID, users); err != nil {
		return 0, &SyncError{Message: fmt.Sprintf("failed to store user directory: %v", err), Err: err}
	}
	return len(users), nil
}

// GetChannelSyncState reads the persisted watermark for one channel.
func (a *Adapter) GetChannelSyncState(ctx context.Context, sourceID, channelID string) (*ChannelSyncState, error) {
	return a.state.GetChannelSyncState(ctx, sourceID, channelID)
}

// UpdateChannelSyncState writes the watermark after a pass.
func (a *Adapter) UpdateChannelSyncState(ctx context.Context, state ChannelSyncState) error {
	return a.state.UpdateChannelSyncState(ctx, state)
}
