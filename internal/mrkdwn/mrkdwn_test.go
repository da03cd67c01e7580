package mrkdwn

import "testing"

func TestResolve(t *testing.T) {
	users := map[string]string{"U123": "alice", "U456": "bob"}
	channels := map[string]string{"C123": "general"}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "user mention resolved from directory",
			input:    "hey <@U123>, ping <@U456>",
			expected: "hey @alice, ping @bob",
		},
		{
			name:     "user mention prefers directory over embedded label",
			input:    "hey <@U123|old-handle>",
			expected: "hey @alice",
		},
		{
			name:     "unknown user degrades to raw id",
			input:    "cc <@U999>",
			expected: "cc @U999",
		},
		{
			name:     "unknown user falls back to embedded label",
			input:    "cc <@U999|carol>",
			expected: "cc @carol",
		},
		{
			name:     "channel mention prefers embedded name",
			input:    "see <#C123|general-renamed>",
			expected: "see #general-renamed",
		},
		{
			name:     "channel mention resolved from lookup",
			input:    "see <#C123>",
			expected: "see #general",
		},
		{
			name:     "unknown channel degrades to raw id",
			input:    "see <#C777>",
			expected: "see #C777",
		},
		{
			name:     "labeled link becomes markdown link",
			input:    "read <https://example.com/doc|the doc>",
			expected: "read [the doc](https://example.com/doc)",
		},
		{
			name:     "bare link becomes raw URL",
			input:    "read <https://example.com/doc>",
			expected: "read https://example.com/doc",
		},
		{
			name:     "single asterisk emphasis becomes bold",
			input:    "this is *important* stuff",
			expected: "this is **important** stuff",
		},
		{
			name:     "multiple bold spans",
			input:    "*a* and *b*",
			expected: "**a** and **b**",
		},
		{
			name:     "existing double asterisks untouched",
			input:    "already **bold** here",
			expected: "already **bold** here",
		},
		{
			name:     "html entities unescaped",
			input:    "use &lt;div&gt; tags &amp; styles",
			expected: "use <div> tags & styles",
		},
		{
			name:     "plain text unchanged",
			input:    "nothing special here",
			expected: "nothing special here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.input, users, channels)
			if got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	users := map[string]string{"U123": "alice"}
	channels := map[string]string{"C123": "general"}

	// Inputs are entity-free: entity unescaping applies once per call,
	// so double-escaped text is not idempotent (see TestResolveUnescapesOnce).
	inputs := []string{
		"hey <@U123>, see <#C123> and <https://example.com|docs>, *now*",
		"mix of <@U999> unknown and *bold* and <https://example.com>",
		"plain text with @alice and #general and **bold**",
	}

	for _, input := range inputs {
		once := Resolve(input, users, channels)
		twice := Resolve(once, users, channels)
		if once != twice {
			t.Errorf("not idempotent:\n input: %q\n  once: %q\n twice: %q", input, once, twice)
		}
	}
}

// Double-escaped entities lose exactly one level of escaping per call.
// A message mentioning the literal text "&lt;" arrives from Slack as
// "&amp;lt;" and must render as "&lt;", not "<".
func TestResolveUnescapesOnce(t *testing.T) {
	input := "escape &amp;lt; like this, and &amp;amp; too"
	want := "escape &lt; like this, and &amp; too"

	got := Resolve(input, nil, nil)
	if got != want {
		t.Errorf("Resolve(%q) = %q, want %q", input, got, want)
	}

	// A second pass unescapes again, which is why callers resolve once.
	again := Resolve(got, nil, nil)
	if again != "escape < like this, and & too" {
		t.Errorf("second Resolve = %q", again)
	}
}
