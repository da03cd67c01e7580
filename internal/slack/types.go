package slack

// Channel represents a Slack conversation as returned by the API.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsChannel bool   `json:"is_channel"`
	IsPrivate bool   `json:"is_private"`
	IsMember  bool   `json:"is_member"`
}

// User represents a Slack user as returned by users.list.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	IsBot    bool   `json:"is_bot"`
	Profile  struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
		Email       string `json:"email"`
	} `json:"profile"`
}

// Reaction is one emoji reaction on a message.
type Reaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// File is a file reference attached to a message.
type File struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Mimetype   string `json:"mimetype"`
	URLPrivate string `json:"url_private"`
	Size       int64  `json:"size"`
}

// Edited marks an edited message.
type Edited struct {
	User string `json:"user"`
	TS   string `json:"ts"`
}

// Message is one raw message from conversations.history or
// conversations.replies. TS is the authoritative identity and sort key.
type Message struct {
	Type            string     `json:"type"`
	Subtype         string     `json:"subtype,omitempty"`
	User            string     `json:"user"`
	BotID           string     `json:"bot_id,omitempty"`
	Text            string     `json:"text"`
	TS              string     `json:"ts"`
	ThreadTS        string     `json:"thread_ts,omitempty"`
	ReplyCount      int        `json:"reply_count,omitempty"`
	ReplyUsersCount int        `json:"reply_users_count,omitempty"`
	LatestReply     string     `json:"latest_reply,omitempty"`
	Reactions       []Reaction `json:"reactions,omitempty"`
	Files           []File     `json:"files,omitempty"`
	Edited          *Edited    `json:"edited,omitempty"`
}

// SubtypeThreadBroadcast is the one message subtype that is real user
// content; every other subtype (channel_join, channel_leave, ...) is noise.
const SubtypeThreadBroadcast = "thread_broadcast"

// IsNoise reports whether the message should be excluded from
// normalization based on its subtype.
func (m Message) IsNoise() bool {
	return m.Subtype != "" && m.Subtype != SubtypeThreadBroadcast
}

// IsBot reports whether the message was posted by a bot.
func (m Message) IsBot() bool {
	return m.BotID != ""
}

// HistoryPage is one page of conversations.history results.
type HistoryPage struct {
	Messages   []Message
	HasMore    bool
	NextCursor string
}

// Identity is the result of auth.test.
type Identity struct {
	Team   string `json:"team"`
	TeamID string `json:"team_id"`
	User   string `json:"user"`
	UserID string `json:"user_id"`
}
