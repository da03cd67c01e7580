package connector

import (
	"encoding/json"
	"strings"
)

// Event is the closed set of inbound real-time event variants. Payloads
// are discriminated once, up front, instead of being re-cast at each use.
type Event interface {
	isEvent()
}

// ReactionEvent is a reaction_added / reaction_removed event. The
// reaction payload alone is insufficient to rebuild the item, so handling
// re-fetches the referenced message.
type ReactionEvent struct {
	Type    string
	Channel string
	TS      string
}

// MessageEvent is a message posted or edited in a channel.
type MessageEvent struct {
	Channel  string
	TS       string
	ThreadTS string
	Subtype  string
}

// OtherEvent is any event type the connector does not handle.
type OtherEvent struct {
	Type string
}

func (ReactionEvent) isEvent() {}
func (MessageEvent) isEvent()  {}
func (OtherEvent) isEvent()    {}

// rawEvent is the superset of fields across supported event payloads.
type rawEvent struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	Subtype  string `json:"subtype"`
	Item     struct {
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"item"`
}

// DecodeEvent discriminates a raw event payload into its variant.
// Undecodable payloads become OtherEvent so handling stays a no-op.
func DecodeEvent(raw json.RawMessage) Event {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return OtherEvent{}
	}

	switch {
	case strings.HasPrefix(ev.Type, "reaction_"):
		return ReactionEvent{
			Type:    ev.Type,
			Channel: ev.Item.Channel,
			TS:      ev.Item.TS,
		}
	case ev.Type == "message":
		return MessageEvent{
			Channel:  ev.Channel,
			TS:       ev.TS,
			ThreadTS: ev.ThreadTS,
			Subtype:  ev.Subtype,
		}
	default:
		return OtherEvent{Type: ev.Type}
	}
}
