package session

import (
	"context"

	"github.com/lalomorales22/roundtable/artifact"
	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/memory"
)

// Store is the complete in-memory core.Store.
type Store struct {
	*InMemoryStore
	Artifacts *artifact.InMemoryStore
	Memories  *memory.InMemoryStore
}

var _ core.Store = (*Store)(nil)

// NewStore returns an empty in-memory core.Store.
func NewStore(optFns ...func(o *Options)) *Store {
	return &Store{
		InMemoryStore: NewInMemoryStore(optFns...),
		Artifacts:     artifact.NewInMemoryStore(),
		Memories:      memory.NewInMemoryStore(),
	}
}

// DeleteConversation removes the conversation, its messages and artifacts.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.InMemoryStore.DeleteConversation(ctx, id); err != nil {
		return err
	}
	return s.Artifacts.DeleteConversation(ctx, id)
}

// AppendArtifact stores an artifact of an existing conversation.
func (s *Store) AppendArtifact(ctx context.Context, a core.Artifact) (*core.Artifact, error) {
	if _, err := s.GetConversation(ctx, a.ConversationID); err != nil {
		return nil, err
	}
	return s.Artifacts.AppendArtifact(ctx, a)
}

// ListArtifacts returns the conversation's artifacts oldest first.
func (s *Store) ListArtifacts(ctx context.Context, conversationID string) ([]core.Artifact, error) {
	return s.Artifacts.ListArtifacts(ctx, conversationID)
}

// Remember implements core.MemoryStore.
func (s *Store) Remember(ctx context.Context, m core.Memory) error {
	return s.Memories.Remember(ctx, m)
}

// Recall implements core.MemoryStore.
func (s *Store) Recall(ctx context.Context, agent string, limit int) ([]core.Memory, error) {
	return s.Memories.Recall(ctx, agent, limit)
}
