package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreSuite checks a core.Store implementation against the behaviour
// every backend must share. newStore is called once per subtest.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("CreateGetList", func(t *testing.T) {
		s := newStore(t)

		a, err := s.CreateConversation(ctx, "first")
		require.NoError(t, err)
		require.NotEmpty(t, a.ID)
		assert.Equal(t, "first", a.Name)

		got, err := s.GetConversation(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, "first", got.Name)

		time.Sleep(5 * time.Millisecond)
		b, err := s.CreateConversation(ctx, "second")
		require.NoError(t, err)

		list, err := s.ListConversations(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID)

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.UpdateSummary(ctx, a.ID, "sum"))

		list, err = s.ListConversations(ctx)
		require.NoError(t, err)
		assert.Equal(t, a.ID, list[0].ID)
		assert.Equal(t, "sum", list[0].Summary)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetConversation(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = s.AppendMessage(ctx, "missing", "A", "x")
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, _, err = s.LastSpeaker(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)

		assert.ErrorIs(t, s.UpdateSummary(ctx, "missing", "x"), core.ErrNotFound)
		assert.ErrorIs(t, s.DeleteConversation(ctx, "missing"), core.ErrNotFound)

		_, err = s.AppendArtifact(ctx, core.Artifact{ConversationID: "missing", Filename: "a.py"})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("MessagesOrdering", func(t *testing.T) {
		s := newStore(t)
		c, err := s.CreateConversation(ctx, "c")
		require.NoError(t, err)

		speaker, ok, err := s.LastSpeaker(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, speaker)

		for i := 0; i < 5; i++ {
			m, err := s.AppendMessage(ctx, c.ID, fmt.Sprintf("S%d", i), fmt.Sprintf("b%d", i))
			require.NoError(t, err)
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, c.ID, m.ConversationID)
		}

		_, err = s.AppendMessage(ctx, c.ID, " ", "x")
		assert.ErrorIs(t, err, core.ErrInvalidMessage)

		recent, err := s.RecentMessages(ctx, c.ID, 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, []string{"S4", "S3", "S2"}, speakers(recent))

		all, err := s.Messages(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"S0", "S1", "S2", "S3", "S4"}, speakers(all))
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].Less(all[i]))
		}

		speaker, ok, err = s.LastSpeaker(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "S4", speaker)
	})

	t.Run("ArtifactsAndDelete", func(t *testing.T) {
		s := newStore(t)
		c, err := s.CreateConversation(ctx, "c")
		require.NoError(t, err)
		m, err := s.AppendMessage(ctx, c.ID, "A", "[Code file 'a.py' added to artifacts]")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			a, err := s.AppendArtifact(ctx, core.Artifact{
				ConversationID: c.ID,
				MessageID:      m.ID,
				Agent:          "A",
				Filename:       "a.py",
				Language:       "python",
				Content:        fmt.Sprintf("v%d", i),
			})
			require.NoError(t, err)
			assert.NotEmpty(t, a.ID)
		}

		arts, err := s.ListArtifacts(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, arts, 2)
		assert.Equal(t, "v0", arts[0].Content)
		assert.Equal(t, "v1", arts[1].Content)
		assert.Equal(t, m.ID, arts[0].MessageID)

		require.NoError(t, s.DeleteConversation(ctx, c.ID))
		_, err = s.GetConversation(ctx, c.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)

		arts, err = s.ListArtifacts(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, arts)
	})

	t.Run("Memories", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.Remember(ctx, core.Memory{Agent: "A", Key: "low", Value: "1", Importance: 1, UpdatedAt: base}))
		require.NoError(t, s.Remember(ctx, core.Memory{Agent: "A", Key: "old", Value: "2", Importance: 5, UpdatedAt: base}))
		require.NoError(t, s.Remember(ctx, core.Memory{Agent: "A", Key: "new", Value: "3", Importance: 5, UpdatedAt: base.Add(time.Minute)}))
		require.NoError(t, s.Remember(ctx, core.Memory{Agent: "A", Key: "old", Value: "2b", Importance: 5, UpdatedAt: base}))

		got, err := s.Recall(ctx, "A", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new", got[0].Key)
		assert.Equal(t, "old", got[1].Key)
		assert.Equal(t, "2b", got[1].Value)

		none, err := s.Recall(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		c, err := s.CreateConversation(ctx, "c")
		require.NoError(t, err)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.AppendMessage(ctx, c.ID, fmt.Sprintf("S%d", i), "x")
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		all, err := s.Messages(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, all, n)
	})
}

func speakers(ms []core.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Speaker
	}
	return out
}
