// Package mrkdwn converts Slack's inline markup into markdown. All
// functions are pure: lookup tables come in as plain maps and
// unresolvable ids degrade to the raw id. Token resolution is
// idempotent because tokens are consumed rather than re-emitted. The
// one exception is HTML-entity unescaping, which applies exactly once
// per Resolve call: feeding already-resolved text back in unescapes any
// doubly-escaped entities a second time (&amp;lt; becomes &lt; and then
// <), so callers must resolve each message exactly once.
package mrkdwn

import (
	"regexp"
	"strings"
)

var (
	userTokenPattern    = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|([^>]*))?>`)
	channelTokenPattern = regexp.MustCompile(`<#([A-Z0-9]+)(?:\|([^>]*))?>`)
	linkTokenPattern    = regexp.MustCompile(`<(https?://[^|>]+)(?:\|([^>]*))?>`)
	boldSpanPattern     = regexp.MustCompile(`\*([^*\n]+)\*`)
)

// Resolve converts mrkdwn text to markdown, resolving user and channel
// references against the given lookup tables.
func Resolve(text string, users, channels map[string]string) string {
	text = unescapeEntities(text)
	text = resolveUsers(text, users)
	text = resolveChannels(text, channels)
	text = resolveLinks(text)
	text = resolveBold(text)
	return text
}

// unescapeEntities reverses the HTML-entity escaping Slack applies to
// message text. Runs first so tokens inside escaped text resolve normally.
func unescapeEntities(text string) string {
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	return text
}

// resolveUsers replaces <@U123> and <@U123|label> tokens with
// @displayName, preferring the lookup table, then the embedded label,
// then the raw id.
func resolveUsers(text string, users map[string]string) string {
	return userTokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := userTokenPattern.FindStringSubmatch(match)
		id, label := parts[1], parts[2]
		if name, ok := users[id]; ok && name != "" {
			return "@" + name
		}
		if label != "" {
			return "@" + label
		}
		return "@" + id
	})
}

// resolveChannels replaces <#C123> and <#C123|name> tokens with
// #channelName, preferring the embedded name, then the lookup table,
// then the raw id.
func resolveChannels(text string, channels map[string]string) string {
	return channelTokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := channelTokenPattern.FindStringSubmatch(match)
		id, label := parts[1], parts[2]
		if label != "" {
			return "#" + label
		}
		if name, ok := channels[id]; ok && name != "" {
			return "#" + name
		}
		return "#" + id
	})
}

// resolveLinks replaces <url|label> with [label](url) and <url> with the
// bare URL.
func resolveLinks(text string) string {
	return linkTokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkTokenPattern.FindStringSubmatch(match)
		url, label := parts[1], parts[2]
		if label != "" {
			return "[" + label + "](" + url + ")"
		}
		return url
	})
}

// resolveBold turns *emphasis* into **emphasis**. Spans already wrapped in
// double asterisks are left alone, which keeps the conversion idempotent.
func resolveBold(text string) string {
	matches := boldSpanPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if (start > 0 && text[start-1] == '*') || (end < len(text) && text[end] == '*') {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString("**")
		b.WriteString(text[start+1 : end-1])
		b.WriteString("**")
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
