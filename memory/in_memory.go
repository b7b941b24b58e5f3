package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
)

// InMemoryStore is a naive process-local MemoryStore keyed by agent and
// memory key. Remember replaces an existing key; Recall sorts on every call.
//
// Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string]map[string]core.Memory // agent -> key -> memory
	now      func() time.Time
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memories: make(map[string]map[string]core.Memory),
		now:      time.Now,
	}
}

// Remember inserts or replaces the memory identified by (Agent, Key).
func (m *InMemoryStore) Remember(_ context.Context, mem core.Memory) error {
	if mem.Agent == "" || mem.Key == "" {
		return fmt.Errorf("memory requires agent and key: %w", core.ErrInvalidMessage)
	}
	if mem.Importance == 0 {
		mem.Importance = DefaultImportance
	}
	if mem.UpdatedAt.IsZero() {
		mem.UpdatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memories[mem.Agent]; !ok {
		m.memories[mem.Agent] = make(map[string]core.Memory)
	}
	m.memories[mem.Agent][mem.Key] = mem

	return nil
}

// Recall returns up to limit memories of agent, most important first and
// most recently updated first within equal importance.
func (m *InMemoryStore) Recall(_ context.Context, agent string, limit int) ([]core.Memory, error) {
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	m.mu.RLock()
	out := make([]core.Memory, 0, len(m.memories[agent]))
	for _, mem := range m.memories[agent] {
		out = append(out, mem)
	}
	m.mu.RUnlock()

	SortMemories(out)

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// SortMemories orders memories by importance then recency, both descending,
// with the key as final tiebreaker.
func SortMemories(ms []core.Memory) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Importance != ms[j].Importance {
			return ms[i].Importance > ms[j].Importance
		}
		if !ms[i].UpdatedAt.Equal(ms[j].UpdatedAt) {
			return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
		}
		return ms[i].Key < ms[j].Key
	})
}
