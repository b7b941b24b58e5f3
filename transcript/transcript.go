// Package transcript renders the bounded, chronological context window an
// agent sees before it speaks.
package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/lalomorales22/roundtable/core"
)

// DefaultWindow is the number of recent messages rendered when the caller
// does not choose one.
const DefaultWindow = 12

// Builder renders context windows from a ConversationStore.
type Builder struct {
	Store core.ConversationStore
}

// Render loads the newest maxMessages messages of the conversation and
// renders them oldest first as "speaker: body" lines. It must be called
// again before every agent call so earlier replies of the same round are
// visible.
func (b Builder) Render(ctx context.Context, conversationID string, maxMessages int) (string, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultWindow
	}

	recent, err := b.Store.RecentMessages(ctx, conversationID, maxMessages)
	if err != nil {
		return "", fmt.Errorf("load recent messages: %w", err)
	}

	return Format(Chronological(recent)), nil
}

// Chronological returns a reversed copy of a newest-first slice.
func Chronological(newestFirst []core.Message) []core.Message {
	out := make([]core.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out
}

// Format renders chronological messages, one "speaker: body" per line.
func Format(messages []core.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Line(m.Speaker, m.Body))
	}
	return b.String()
}

// Line renders a single transcript line.
func Line(speaker, body string) string {
	return speaker + ": " + body
}

// Append adds one line to an already rendered window.
func Append(window, speaker, body string) string {
	if window == "" {
		return Line(speaker, body)
	}
	return window + "\n" + Line(speaker, body)
}
