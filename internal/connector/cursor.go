package connector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeCursor builds the "{channelID}:{ts}" pagination cursor. Resume
// semantics are single-channel: the cursor only ever re-enters the first
// configured channel.
func EncodeCursor(channelID, ts string) string {
	return channelID + ":" + ts
}

// ParseCursor splits a "{channelID}:{ts}" cursor. Round-trips with
// EncodeCursor as long as the channel id contains no colon.
func ParseCursor(cursor string) (channelID, ts string, ok bool) {
	channelID, ts, ok = strings.Cut(cursor, ":")
	if channelID == "" || ts == "" {
		return "", "", false
	}
	return channelID, ts, ok
}

// ParseTS converts a Slack "seconds.microseconds" timestamp to time.Time.
func ParseTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}

// FormatTS renders a time.Time in Slack timestamp format.
func FormatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// tsLess compares two Slack timestamps numerically, falling back to
// string order for malformed values.
func tsLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}
