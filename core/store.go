package core

import "context"

// ConversationStore persists conversations and their append-only message
// history. Implementations must be safe for concurrent use and serialize
// writes per conversation so that LastSpeaker and AppendMessage stay
// consistent.
type ConversationStore interface {
	CreateConversation(ctx context.Context, name string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns conversations ordered by UpdatedAt, newest first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// DeleteConversation removes a conversation together with its messages
	// and artifacts.
	DeleteConversation(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, conversationID, speaker, body string) (*Message, error)
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// Messages returns the whole transcript in chronological order.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	// LastSpeaker reports the speaker of the newest message, if any.
	LastSpeaker(ctx context.Context, conversationID string) (string, bool, error)
	// UpdateSummary replaces the cached summary and bumps UpdatedAt.
	UpdateSummary(ctx context.Context, conversationID, summary string) error
}

// ArtifactStore persists artifacts extracted from agent replies.
type ArtifactStore interface {
	// AppendArtifact stores a new artifact row; ID and CreatedAt are assigned
	// when empty.
	AppendArtifact(ctx context.Context, artifact Artifact) (*Artifact, error)
	// ListArtifacts returns the conversation's artifacts oldest first.
	ListArtifacts(ctx context.Context, conversationID string) ([]Artifact, error)
}

// MemoryStore persists per-agent memories.
type MemoryStore interface {
	// Remember inserts or replaces the memory identified by (Agent, Key).
	Remember(ctx context.Context, memory Memory) error
	// Recall returns up to limit memories for agent ordered by importance
	// then recency, both descending.
	Recall(ctx context.Context, agent string, limit int) ([]Memory, error)
}

// Store is implemented by backends that persist everything in one place.
type Store interface {
	ConversationStore
	ArtifactStore
	MemoryStore
}
