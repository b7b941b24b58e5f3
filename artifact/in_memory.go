package artifact

import (
	"context"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
)

// InMemoryStore is a trivial in-process ArtifactStore implementation useful
// for tests, examples and single-process prototypes. Artifacts are kept per
// conversation in insertion order behind an RWMutex and copied on the way in
// and out.
//
// Layout: conversationID -> []Artifact (oldest first)
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]core.Artifact
	now       func() time.Time
}

var _ core.ArtifactStore = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string][]core.Artifact), now: time.Now}
}

// AppendArtifact stores a new artifact row. Duplicate filenames create new
// rows; nothing is ever overwritten.
func (a *InMemoryStore) AppendArtifact(_ context.Context, art core.Artifact) (*core.Artifact, error) {
	if art.ConversationID == "" || art.Filename == "" {
		return nil, core.ErrInvalidMessage
	}

	if art.ID == "" {
		art.ID = core.NewID()
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = a.now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.artifacts[art.ConversationID] = append(a.artifacts[art.ConversationID], art)

	out := art
	return &out, nil
}

// ListArtifacts returns a snapshot of the conversation's artifacts, oldest
// first. Unknown conversations yield an empty slice.
func (a *InMemoryStore) ListArtifacts(_ context.Context, conversationID string) ([]core.Artifact, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	src := a.artifacts[conversationID]
	out := make([]core.Artifact, len(src))
	copy(out, src)

	return out, nil
}

// Get returns the artifact with the given id or ErrNotFound.
func (a *InMemoryStore) Get(_ context.Context, conversationID, artifactID string) (*core.Artifact, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, art := range a.artifacts[conversationID] {
		if art.ID == artifactID {
			out := art
			return &out, nil
		}
	}

	return nil, ErrNotFound
}

// DeleteConversation drops every artifact of the conversation.
func (a *InMemoryStore) DeleteConversation(_ context.Context, conversationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.artifacts, conversationID)

	return nil
}
