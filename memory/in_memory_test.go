package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_RememberRecall(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Remember(ctx, core.Memory{Agent: "A", Key: "low", Value: "1", Importance: 1, UpdatedAt: base}))
	require.NoError(t, store.Remember(ctx, core.Memory{Agent: "A", Key: "old", Value: "2", Importance: 5, UpdatedAt: base}))
	require.NoError(t, store.Remember(ctx, core.Memory{Agent: "A", Key: "new", Value: "3", Importance: 5, UpdatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.Remember(ctx, core.Memory{Agent: "B", Key: "other", Value: "x"}))

	got, err := store.Recall(ctx, "A", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"new", "old", "low"}, []string{got[0].Key, got[1].Key, got[2].Key})

	// upsert by key
	require.NoError(t, store.Remember(ctx, core.Memory{Agent: "A", Key: "low", Value: "updated", Importance: 9, UpdatedAt: base}))
	got, _ = store.Recall(ctx, "A", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].Value)

	b, _ := store.Recall(ctx, "B", 0)
	require.Len(t, b, 1)
	assert.Equal(t, DefaultImportance, b[0].Importance)
	assert.False(t, b[0].UpdatedAt.IsZero())
}

func TestInMemoryStore_RecallLimit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	for i := 0; i < 15; i++ {
		require.NoError(t, store.Remember(ctx, core.Memory{Agent: "A", Key: fmt.Sprintf("k%02d", i), Value: "v"}))
	}

	got, err := store.Recall(ctx, "A", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultRecallLimit)
}

func TestInMemoryStore_Invalid(t *testing.T) {
	err := NewInMemoryStore().Remember(context.Background(), core.Memory{Key: "k"})
	assert.True(t, errors.Is(err, core.ErrInvalidMessage))
}
