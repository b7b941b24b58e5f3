package testutil

import (
	"context"
	"testing"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/roster"
	"github.com/stretchr/testify/require"
)

// ConversationBuilder seeds a conversation with messages in tests.
// Example:
//
//	id := NewConversationBuilder(store).Name("demo").Message("User", "hi").Build(t)
type ConversationBuilder struct {
	store    core.ConversationStore
	name     string
	messages [][2]string
	summary  *string
}

// NewConversationBuilder creates a builder writing to store.
func NewConversationBuilder(store core.ConversationStore) *ConversationBuilder {
	return &ConversationBuilder{store: store, name: "test conversation"}
}

// Name sets the conversation name (chainable).
func (b *ConversationBuilder) Name(n string) *ConversationBuilder { b.name = n; return b }

// Message appends one message (chainable).
func (b *ConversationBuilder) Message(speaker, body string) *ConversationBuilder {
	b.messages = append(b.messages, [2]string{speaker, body})
	return b
}

// Summary sets the cached summary (chainable).
func (b *ConversationBuilder) Summary(s string) *ConversationBuilder { b.summary = &s; return b }

// Build creates the conversation and returns its id.
func (b *ConversationBuilder) Build(t testing.TB) string {
	t.Helper()

	ctx := context.Background()

	c, err := b.store.CreateConversation(ctx, b.name)
	require.NoError(t, err)

	for _, m := range b.messages {
		_, err := b.store.AppendMessage(ctx, c.ID, m[0], m[1])
		require.NoError(t, err)
	}

	if b.summary != nil {
		require.NoError(t, b.store.UpdateSummary(ctx, c.ID, *b.summary))
	}

	return c.ID
}

// RosterBuilder assembles a roster whose members all share one client.
// Example:
//
//	r := NewRosterBuilder(mock).Agents("A", "B").Summarizer("S").Build(t)
type RosterBuilder struct {
	client     core.AgentClient
	agents     []core.Agent
	summarizer *core.Agent
	human      string
}

// NewRosterBuilder creates a builder binding every member to c. A nil c
// falls back to a fresh client.Mock.
func NewRosterBuilder(c core.AgentClient) *RosterBuilder {
	if c == nil {
		c = client.NewMock()
	}
	return &RosterBuilder{client: c, human: core.DefaultHumanSpeaker}
}

// Agents appends members named names with a generated persona (chainable).
func (b *RosterBuilder) Agents(names ...string) *RosterBuilder {
	for _, n := range names {
		b.agents = append(b.agents, core.Agent{Name: n, Persona: "You are " + n + ".", API: "mock"})
	}
	return b
}

// Agent appends a fully specified member (chainable).
func (b *RosterBuilder) Agent(a core.Agent) *RosterBuilder { b.agents = append(b.agents, a); return b }

// Summarizer sets the summarizer member (chainable).
func (b *RosterBuilder) Summarizer(name string) *RosterBuilder {
	b.summarizer = &core.Agent{Name: name, Persona: "Summarize the round.", API: "mock"}
	return b
}

// Human sets the human speaker name (chainable).
func (b *RosterBuilder) Human(name string) *RosterBuilder { b.human = name; return b }

// Build constructs the roster.
func (b *RosterBuilder) Build(t testing.TB) *roster.Roster {
	t.Helper()

	members := make([]roster.Member, len(b.agents))
	for i, a := range b.agents {
		members[i] = roster.Member{Agent: a, Client: b.client, Vendor: a.API}
	}

	var s *roster.Member
	if b.summarizer != nil {
		s = &roster.Member{Agent: *b.summarizer, Client: b.client, Vendor: b.summarizer.API}
	}

	r, err := roster.New(members, func(o *roster.Options) {
		o.Summarizer = s
		o.HumanName = b.human
	})
	require.NoError(t, err)

	return r
}
