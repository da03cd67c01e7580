package slack

import (
	"context"
	"strconv"
)

// pageMax is the largest page size the conversations endpoints accept.
const pageMax = 200

type paginationMeta struct {
	NextCursor string `json:"next_cursor"`
}

// AuthTest validates the token and returns the authenticated identity.
func (c *Client) AuthTest(ctx context.Context, token string) (*Identity, error) {
	var resp struct {
		apiEnvelope
		Identity
	}
	if err := c.call(ctx, token, "auth.test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Identity, nil
}

// ListChannels pages through conversations.list and returns every channel
// visible to the token.
func (c *Client) ListChannels(ctx context.Context, token, types string) ([]Channel, error) {
	if types == "" {
		types = "public_channel,private_channel"
	}

	var all []Channel
	cursor := ""
	for {
		var resp struct {
			apiEnvelope
			Channels         []Channel      `json:"channels"`
			ResponseMetadata paginationMeta `json:"response_metadata"`
		}
		params := map[string]string{
			"types":  types,
			"limit":  strconv.Itoa(pageMax),
			"cursor": cursor,
		}
		if err := c.call(ctx, token, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Channels...)

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return all, nil
		}
	}
}

// ChannelInfo fetches a single channel by id.
func (c *Client) ChannelInfo(ctx context.Context, token, channelID string) (*Channel, error) {
	var resp struct {
		apiEnvelope
		Channel Channel `json:"channel"`
	}
	params := map[string]string{"channel": channelID}
	if err := c.call(ctx, token, "conversations.info", params, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

// HistoryParams bounds a conversations.history page.
type HistoryParams struct {
	Channel string
	Limit   int
	Cursor  string
	Oldest  string
	Latest  string
	// Inclusive includes the message at the oldest/latest boundary; used
	// for exact-timestamp point lookups.
	Inclusive bool
}

// History fetches one page of channel history. Pagination state stays with
// the caller: the orchestrator persists the watermark between passes.
func (c *Client) History(ctx context.Context, token string, p HistoryParams) (*HistoryPage, error) {
	if p.Limit <= 0 || p.Limit > pageMax {
		p.Limit = pageMax
	}

	var resp struct {
		apiEnvelope
		Messages         []Message      `json:"messages"`
		HasMore          bool           `json:"has_more"`
		ResponseMetadata paginationMeta `json:"response_metadata"`
	}
	params := map[string]string{
		"channel": p.Channel,
		"limit":   strconv.Itoa(p.Limit),
		"cursor":  p.Cursor,
		"oldest":  p.Oldest,
		"latest":  p.Latest,
	}
	if p.Inclusive {
		params["inclusive"] = "true"
	}
	if err := c.call(ctx, token, "conversations.history", params, &resp); err != nil {
		return nil, err
	}

	return &HistoryPage{
		Messages:   resp.Messages,
		HasMore:    resp.HasMore,
		NextCursor: resp.ResponseMetadata.NextCursor,
	}, nil
}

// Replies pages through conversations.replies for one thread. The first
// element of the upstream message list is always the thread root.
func (c *Client) Replies(ctx context.Context, token, channelID, threadTS string) ([]Message, error) {
	var all []Message
	cursor := ""
	for {
		var resp struct {
			apiEnvelope
			Messages         []Message      `json:"messages"`
			ResponseMetadata paginationMeta `json:"response_metadata"`
		}
		params := map[string]string{
			"channel": channelID,
			"ts":      threadTS,
			"limit":   strconv.Itoa(pageMax),
			"cursor":  cursor,
		}
		if err := c.call(ctx, token, "conversations.replies", params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Messages...)

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return all, nil
		}
	}
}

// ListUsers pages through users.list and returns the full user directory.
func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	var all []User
	cursor := ""
	for {
		var resp struct {
			apiEnvelope
			Members          []User         `json:"members"`
			ResponseMetadata paginationMeta `json:"response_metadata"`
		}
		params := map[string]string{
			"limit":  strconv.Itoa(pageMax),
			"cursor": cursor,
		}
		if err := c.call(ctx, token, "users.list", params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Members...)

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return all, nil
		}
	}
}

// Permalink fetches the stable URL for one message.
func (c *Client) Permalink(ctx context.Context, token, channelID, messageTS string) (string, error) {
	var resp struct {
		apiEnvelope
		Permalink string `json:"permalink"`
	}
	params := map[string]string{
		"channel":    channelID,
		"message_ts": messageTS,
	}
	if err := c.call(ctx, token, "chat.getPermalink", params, &resp); err != nil {
		return "", err
	}
	return resp.Permalink, nil
}
