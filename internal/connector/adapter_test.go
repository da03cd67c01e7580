package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fieldline/slacksync/internal/slack"
)

// fakeAPI is a canned-response SlackAPI that records every call it sees.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	identity   *slack.Identity
	authErr    error
	channels   []slack.Channel
	infoErr    map[string]error
	history    map[string]*slack.HistoryPage
	historyErr map[string]error
	replies    map[string][]slack.Message
	users      []slack.User
	permalinks map[string]string
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) AuthTest(_ context.Context, _ string) (*slack.Identity, error) {
	f.record("auth.test")
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.identity, nil
}

func (f *fakeAPI) ListChannels(_ context.Context, _ string, _ string) ([]slack.Channel, error) {
	f.record("conversations.list")
	return f.channels, nil
}

func (f *fakeAPI) ChannelInfo(_ context.Context, _ string, channelID string) (*slack.Channel, error) {
	f.record("conversations.info:" + channelID)
	if err := f.infoErr[channelID]; err != nil {
		return nil, err
	}
	for _, ch := range f.channels {
		if ch.ID == channelID {
			return &ch, nil
		}
	}
	return &slack.Channel{ID: channelID}, nil
}

func (f *fakeAPI) History(_ context.Context, _ string, p slack.HistoryParams) (*slack.HistoryPage, error) {
	f.record(fmt.Sprintf("conversations.history:%s oldest=%s latest=%s inclusive=%v", p.Channel, p.Oldest, p.Latest, p.Inclusive))
	if err := f.historyErr[p.Channel]; err != nil {
		return nil, err
	}
	if page, ok := f.history[p.Channel]; ok {
		return page, nil
	}
	return &slack.HistoryPage{}, nil
}

func (f *fakeAPI) Replies(_ context.Context, _ string, channelID, threadTS string) ([]slack.Message, error) {
	f.record("conversations.replies:" + channelID + ":" + threadTS)
	return f.replies[channelID+":"+threadTS], nil
}

func (f *fakeAPI) ListUsers(_ context.Context, _ string) ([]slack.User, error) {
	f.record("users.list")
	return f.users, nil
}

func (f *fakeAPI) Permalink(_ context.Context, _ string, channelID, messageTS string) (string, error) {
	f.record("chat.getPermalink:" + channelID + ":" + messageTS)
	if link, ok := f.permalinks[channelID+":"+messageTS]; ok {
		return link, nil
	}
	return "", errors.New("no permalink")
}

func (f *fakeAPI) Download(_ context.Context, _ string, url string) ([]byte, error) {
	f.record("download:" + url)
	return []byte("blob"), nil
}

type fakeUsers struct {
	directory UserDirectory
	saved     map[string][]slack.User
}

func (f *fakeUsers) Directory(_ context.Context, _ string) (UserDirectory, error) {
	return f.directory, nil
}

func (f *fakeUsers) SaveUsers(_ context.Context, sourceID string, users []slack.User) error {
	if f.saved == nil {
		f.saved = map[string][]slack.User{}
	}
	f.saved[sourceID] = users
	return nil
}

type fakeState struct {
	states map[string]ChannelSyncState
}

func (f *fakeState) GetChannelSyncState(_ context.Context, sourceID, channelID string) (*ChannelSyncState, error) {
	if s, ok := f.states[sourceID+":"+channelID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeState) UpdateChannelSyncState(_ context.Context, state ChannelSyncState) error {
	if f.states == nil {
		f.states = map[string]ChannelSyncState{}
	}
	f.states[state.SourceID+":"+state.ChannelID] = state
	return nil
}

func testSource(channels ...string) Source {
	return Source{
		ID:    "src-1",
		Name:  "acme",
		Token: "xoxb-test",
		Config: SourceConfig{
			Channels: channels,
		},
	}
}

func newTestAdapter(api *fakeAPI) *Adapter {
	return NewAdapter(api, nil, &fakeUsers{directory: testUsers}, &fakeState{}, nil)
}

func TestFetchContent(t *testing.T) {
	rootTS := "1700000100.000001"
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history: map[string]*slack.HistoryPage{
			"C1": {Messages: []slack.Message{
				{User: "U1", Text: "standalone", TS: "1700000000.000001"},
				{User: "U2", Text: "thread root", TS: rootTS, ReplyCount: 2},
			}},
		},
		replies: map[string][]slack.Message{
			"C1:" + rootTS: {
				{User: "U2", Text: "thread root", TS: rootTS, ReplyCount: 2},
				{User: "U1", Text: "first reply", TS: "1700000200.000001", ThreadTS: rootTS},
				{User: "U2", Text: "second reply", TS: "1700000300.000001", ThreadTS: rootTS},
			},
		},
	}
	adapter := newTestAdapter(api)

	result, err := adapter.FetchContent(context.Background(), testSource("C1"), SyncOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if result.Items[0].Type != ItemTypeMessage || result.Items[1].Type != ItemTypeThread {
		t.Errorf("item types = %q, %q", result.Items[0].Type, result.Items[1].Type)
	}
	if result.HasMore || result.NextCursor != "" {
		t.Errorf("hasMore=%v nextCursor=%q, want final page", result.HasMore, result.NextCursor)
	}
	if len(result.Items[1].RelatedExternalIDs) != 2 {
		t.Errorf("thread related ids = %v", result.Items[1].RelatedExternalIDs)
	}
}

func TestFetchContentNoChannels(t *testing.T) {
	api := &fakeAPI{}
	adapter := newTestAdapter(api)

	result, err := adapter.FetchContent(context.Background(), testSource(), SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 0 || result.HasMore {
		t.Errorf("result = %+v, want empty", result)
	}
	if n := api.callCount(); n != 0 {
		t.Errorf("made %d API calls with no channels configured, want 0", n)
	}
}

func TestFetchContentMissingToken(t *testing.T) {
	adapter := newTestAdapter(&fakeAPI{})
	src := testSource("C1")
	src.Token = ""

	_, err := adapter.FetchContent(context.Background(), src, SyncOptions{})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestFetchContentFiltersNoiseAndBots(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history: map[string]*slack.HistoryPage{
			"C1": {Messages: []slack.Message{
				{User: "U1", Text: "keep me", TS: "1700000000.000001"},
				{Subtype: "channel_join", User: "U2", Text: "joined", TS: "1700000001.000001"},
				{Subtype: slack.SubtypeThreadBroadcast, User: "U2", Text: "broadcast", TS: "1700000002.000001"},
				{BotID: "B1", Text: "bot says", TS: "1700000003.000001"},
			}},
		},
	}
	adapter := newTestAdapter(api)
	src := testSource("C1")
	src.Config.ExcludeBots = true

	result, err := adapter.FetchContent(context.Background(), src, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2 (noise and bot dropped)", len(result.Items))
	}
	if result.Items[1].Content != "broadcast" {
		t.Errorf("thread broadcast filtered out: %+v", result.Items)
	}
}

func TestFetchContentSkipsFailingChannel(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}, {ID: "C2", Name: "eng"}},
		infoErr:  map[string]error{"C1": &slack.APIError{Endpoint: "conversations.info", Message: "channel_not_found"}},
		history: map[string]*slack.HistoryPage{
			"C2": {Messages: []slack.Message{{User: "U1", Text: "survives", TS: "1700000000.000001"}}},
		},
	}
	adapter := newTestAdapter(api)

	result, err := adapter.FetchContent(context.Background(), testSource("C1", "C2"), SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 1 || result.Items[0].Content != "survives" {
		t.Errorf("items = %+v, want only the healthy channel's", result.Items)
	}
}

func TestFetchContentPagination(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history: map[string]*slack.HistoryPage{
			"C1": {
				Messages: []slack.Message{
					{User: "U1", Text: "one", TS: "1700000000.000001"},
					{User: "U2", Text: "two", TS: "1700000100.000001"},
				},
				HasMore: true,
			},
		},
	}
	adapter := newTestAdapter(api)

	result, err := adapter.FetchContent(context.Background(), testSource("C1"), SyncOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !result.HasMore {
		t.Error("hasMore = false, want true")
	}
	if want := EncodeCursor("C1", "1700000100.000001"); result.NextCursor != want {
		t.Errorf("next cursor = %q, want %q", result.NextCursor, want)
	}
}

func TestFetchContentCursorResume(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
	}
	adapter := newTestAdapter(api)

	cursor := EncodeCursor("C1", "1700000100.000001")
	if _, err := adapter.FetchContent(context.Background(), testSource("C1"), SyncOptions{Cursor: cursor}); err != nil {
		t.Fatal(err)
	}

	want := "conversations.history:C1 oldest=1700000100.000001 latest= inclusive=false"
	found := false
	for _, call := range api.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", api.calls, want)
	}
}

func TestFetchContentSinceOverridesOlderCursor(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
	}
	adapter := newTestAdapter(api)

	since := time.Unix(1700000500, 0).UTC()
	cursor := EncodeCursor("C1", "1700000100.000001")
	if _, err := adapter.FetchContent(context.Background(), testSource("C1"), SyncOptions{Cursor: cursor, Since: &since}); err != nil {
		t.Fatal(err)
	}

	want := "conversations.history:C1 oldest=1700000500.000000 latest= inclusive=false"
	found := false
	for _, call := range api.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", api.calls, want)
	}
}

func TestFetchContentDisableThreadSync(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history: map[string]*slack.HistoryPage{
			"C1": {Messages: []slack.Message{
				{User: "U1", Text: "root", TS: "1700000000.000001", ReplyCount: 3},
			}},
		},
	}
	adapter := newTestAdapter(api)
	src := testSource("C1")
	src.Config.DisableThreadSync = true

	result, err := adapter.FetchContent(context.Background(), src, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 1 || result.Items[0].Type != ItemTypeMessage {
		t.Fatalf("items = %+v, want one plain message", result.Items)
	}
	for _, call := range api.calls {
		if call == "conversations.replies:C1:1700000000.000001" {
			t.Error("thread sync disabled but replies were fetched")
		}
	}
}

func TestFetchItemThread(t *testing.T) {
	rootTS := "1700000000.000001"
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		replies: map[string][]slack.Message{
			"C1:" + rootTS: {
				{User: "U1", Text: "root", TS: rootTS},
				{User: "U2", Text: "reply", TS: "1700000100.000001", ThreadTS: rootTS},
			},
		},
	}
	adapter := newTestAdapter(api)

	item, err := adapter.FetchItem(context.Background(), testSource("C1"), rootTS)
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.Type != ItemTypeThread {
		t.Fatalf("item = %+v, want thread", item)
	}
	if item.ExternalID != rootTS {
		t.Errorf("external id = %q", item.ExternalID)
	}
}

func TestFetchItemSingleMessage(t *testing.T) {
	ts := "1700000000.000001"
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		replies: map[string][]slack.Message{
			"C1:" + ts: {{User: "U1", Text: "alone", TS: ts}},
		},
	}
	adapter := newTestAdapter(api)

	item, err := adapter.FetchItem(context.Background(), testSource("C1"), ts)
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.Type != ItemTypeMessage {
		t.Fatalf("item = %+v, want message", item)
	}
}

func TestFetchItemNotFound(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
	}
	adapter := newTestAdapter(api)

	item, err := adapter.FetchItem(context.Background(), testSource("C1", "C2"), "1700000000.000001")
	if err != nil {
		t.Fatal(err)
	}
	if item != nil {
		t.Errorf("item = %+v, want absent", item)
	}
}

func TestHandleEventReaction(t *testing.T) {
	ts := "1700000000.000001"
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		replies: map[string][]slack.Message{
			"C1:" + ts: {{User: "U1", Text: "reacted to", TS: ts,
				Reactions: []slack.Reaction{{Name: "eyes", Count: 1, Users: []string{"U2"}}}}},
		},
	}
	adapter := newTestAdapter(api)

	raw := json.RawMessage(`{"type":"reaction_added","item":{"channel":"C1","ts":"` + ts + `"}}`)
	item, err := adapter.HandleEvent(context.Background(), testSource("C1"), raw)
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.ExternalID != ts {
		t.Fatalf("item = %+v", item)
	}
	if _, ok := item.Metadata["reactions"]; !ok {
		t.Error("refetched item missing reactions metadata")
	}
}

func TestHandleEventReactionMissingItem(t *testing.T) {
	api := &fakeAPI{}
	adapter := newTestAdapter(api)

	raw := json.RawMessage(`{"type":"reaction_added","item":{}}`)
	item, err := adapter.HandleEvent(context.Background(), testSource("C1"), raw)
	if err != nil {
		t.Fatal(err)
	}
	if item != nil {
		t.Errorf("item = %+v, want absent", item)
	}
	if n := api.callCount(); n != 0 {
		t.Errorf("made %d API calls for an unusable event, want 0", n)
	}
}

func TestHandleEventBareMessage(t *testing.T) {
	ts := "1700000000.000001"
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		history: map[string]*slack.HistoryPage{
			"C1": {Messages: []slack.Message{{User: "U1", Text: "new message", TS: ts}}},
		},
	}
	adapter := newTestAdapter(api)

	raw := json.RawMessage(`{"type":"message","channel":"C1","ts":"` + ts + `"}`)
	item, err := adapter.HandleEvent(context.Background(), testSource("C1"), raw)
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.Type != ItemTypeMessage || item.Content != "new message" {
		t.Fatalf("item = %+v", item)
	}

	want := "conversations.history:C1 oldest=" + ts + " latest=" + ts + " inclusive=true"
	found := false
	for _, call := range api.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", api.calls, want)
	}
}

func TestHandleEventThreadReply(t *testing.T) {
	rootTS := "1700000000.000001"
	replyTS := "1700000100.000001"
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C1", Name: "general"}},
		replies: map[string][]slack.Message{
			"C1:" + rootTS: {
				{User: "U1", Text: "root", TS: rootTS},
				{User: "U2", Text: "the reply", TS: replyTS, ThreadTS: rootTS},
			},
		},
	}
	adapter := newTestAdapter(api)

	raw := json.RawMessage(`{"type":"message","channel":"C1","ts":"` + replyTS + `","thread_ts":"` + rootTS + `"}`)
	item, err := adapter.HandleEvent(context.Background(), testSource("C1"), raw)
	if err != nil {
		t.Fatal(err)
	}
	// A reply re-renders the whole containing thread, keyed by the root.
	if item == nil || item.Type != ItemTypeThread || item.ExternalID != rootTS {
		t.Fatalf("item = %+v, want re-aggregated thread", item)
	}
}

func TestHandleEventIgnored(t *testing.T) {
	api := &fakeAPI{}
	adapter := newTestAdapter(api)

	for _, raw := range []string{
		`{"type":"channel_archive","channel":"C1"}`,
		`{"type":"message","channel":"C1","ts":"1.000001","subtype":"channel_join"}`,
		`{not json`,
	} {
		item, err := adapter.HandleEvent(context.Background(), testSource("C1"), json.RawMessage(raw))
		if err != nil {
			t.Errorf("HandleEvent(%s) err = %v", raw, err)
		}
		if item != nil {
			t.Errorf("HandleEvent(%s) = %+v, want absent", raw, item)
		}
	}
	if n := api.callCount(); n != 0 {
		t.Errorf("ignored events made %d API calls, want 0", n)
	}
}

func TestValidateCredentials(t *testing.T) {
	valid := &fakeAPI{identity: &slack.Identity{Team: "acme", UserID: "U1"}}
	adapter := newTestAdapter(valid)
	ok, err := adapter.ValidateCredentials(context.Background(), testSource("C1"))
	if err != nil || !ok {
		t.Errorf("valid token: ok=%v err=%v", ok, err)
	}

	revoked := &fakeAPI{authErr: &slack.APIError{Endpoint: "auth.test", Message: "token_revoked"}}
	adapter = newTestAdapter(revoked)
	ok, err = adapter.ValidateCredentials(context.Background(), testSource("C1"))
	if err != nil || ok {
		t.Errorf("revoked token: ok=%v err=%v, want false with no error", ok, err)
	}

	down := &fakeAPI{authErr: errors.New("connection refused")}
	adapter = newTestAdapter(down)
	ok, err = adapter.ValidateCredentials(context.Background(), testSource("C1"))
	if err == nil || ok {
		t.Errorf("transport failure: ok=%v err=%v, want error", ok, err)
	}

	src := testSource("C1")
	src.Token = ""
	ok, err = adapter.ValidateCredentials(context.Background(), src)
	if err != nil || ok {
		t.Errorf("empty token: ok=%v err=%v, want false with no error", ok, err)
	}
}

func TestSyncUsers(t *testing.T) {
	api := &fakeAPI{
		users: []slack.User{{ID: "U1"}, {ID: "U2"}, {ID: "U3"}},
	}
	users := &fakeUsers{directory: testUsers}
	adapter := NewAdapter(api, nil, users, &fakeState{}, nil)

	n, err := adapter.SyncUsers(context.Background(), testSource("C1"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	if len(users.saved["src-1"]) != 3 {
		t.Errorf("saved = %v", users.saved)
	}
}

func TestChannelSyncStateRoundTrip(t *testing.T) {
	state := &fakeState{}
	adapter := NewAdapter(&fakeAPI{}, nil, &fakeUsers{}, state, nil)

	want := ChannelSyncState{
		SourceID:     "src-1",
		ChannelID:    "C1",
		ChannelName:  "general",
		LastCursor:   EncodeCursor("C1", "1700000000.000001"),
		LastSyncedAt: time.Unix(1700000500, 0).UTC(),
	}
	if err := adapter.UpdateChannelSyncState(context.Background(), want); err != nil {
		t.Fatal(err)
	}

	got, err := adapter.GetChannelSyncState(context.Background(), "src-1", "C1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}
}
