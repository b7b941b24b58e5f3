package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
)

type conversation struct {
	meta     core.Conversation
	messages []core.Message // chronological
}

// InMemoryStore is a volatile ConversationStore storing conversations in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Returned values are copies.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	seq           int64
	now           func() time.Time
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// Options configures NewInMemoryStore.
type Options struct {
	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{conversations: make(map[string]*conversation), now: opts.Now}
}

// CreateConversation stores a new conversation named name.
func (s *InMemoryStore) CreateConversation(_ context.Context, name string) (*core.Conversation, error) {
	now := s.now()
	c := core.Conversation{ID: core.NewID(), Name: strings.TrimSpace(name), CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[c.ID] = &conversation{meta: c}

	return &c, nil
}

// GetConversation returns the conversation or core.ErrNotFound.
func (s *InMemoryStore) GetConversation(_ context.Context, id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, notFound(id)
	}

	out := c.meta
	return &out, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *InMemoryStore) ListConversations(_ context.Context) ([]core.Conversation, error) {
	s.mu.RLock()
	out := make([]core.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.meta)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// DeleteConversation removes the conversation and its messages.
func (s *InMemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return notFound(id)
	}
	delete(s.conversations, id)

	return nil
}

// AppendMessage appends one message. Messages are never edited afterwards.
func (s *InMemoryStore) AppendMessage(_ context.Context, conversationID, speaker, body string) (*core.Message, error) {
	if strings.TrimSpace(speaker) == "" {
		return nil, fmt.Errorf("%w: empty speaker", core.ErrInvalidMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, notFound(conversationID)
	}

	s.seq++
	msg := core.Message{
		ID:             core.NewID(),
		ConversationID: conversationID,
		Speaker:        speaker,
		Body:           body,
		CreatedAt:      s.now(),
		Seq:            s.seq,
	}
	c.messages = append(c.messages, msg)

	return &msg, nil
}

// RecentMessages returns up to limit messages, newest first.
func (s *InMemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, notFound(conversationID)
	}

	n := len(c.messages)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]core.Message, 0, n)
	for i := len(c.messages) - 1; i >= len(c.messages)-n; i-- {
		out = append(out, c.messages[i])
	}

	return out, nil
}

// Messages returns the full transcript in chronological order.
func (s *InMemoryStore) Messages(_ context.Context, conversationID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, notFound(conversationID)
	}

	out := make([]core.Message, len(c.messages))
	copy(out, c.messages)

	return out, nil
}

// LastSpeaker reports the speaker of the newest message.
func (s *InMemoryStore) LastSpeaker(_ context.Context, conversationID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return "", false, notFound(conversationID)
	}
	if len(c.messages) == 0 {
		return "", false, nil
	}

	return c.messages[len(c.messages)-1].Speaker, true, nil
}

// UpdateSummary replaces the cached summary and bumps UpdatedAt.
func (s *InMemoryStore) UpdateSummary(_ context.Context, conversationID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return notFound(conversationID)
	}

	c.meta.Summary = summary
	if now := s.now(); now.After(c.meta.UpdatedAt) {
		c.meta.UpdatedAt = now
	}

	return nil
}

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
}
