package transcript

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// stubStore serves RecentMessages from a fixed chronological history.
type stubStore struct {
	mock.Mock
	core.ConversationStore
	history []core.Message
}

func (s *stubStore) RecentMessages(ctx context.Context, id string, limit int) ([]core.Message, error) {
	args := s.Called(ctx, id, limit)
	if err := args.Error(0); err != nil {
		return nil, err
	}

	n := len(s.history)
	if limit < n {
		n = limit
	}
	out := make([]core.Message, 0, n)
	for i := len(s.history) - 1; i >= len(s.history)-n; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func history(n int) []core.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]core.Message, n)
	for i := range out {
		out[i] = core.Message{
			Speaker:   fmt.Sprintf("S%d", i),
			Body:      fmt.Sprintf("body %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Seq:       int64(i + 1),
		}
	}
	return out
}

func TestRender(t *testing.T) {
	store := &stubStore{history: history(5)}
	store.On("RecentMessages", mock.Anything, "c1", 3).Return(nil)

	out, err := Builder{Store: store}.Render(context.Background(), "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, "S2: body 2\nS3: body 3\nS4: body 4", out)
	store.AssertExpectations(t)
}

func TestRender_DefaultWindowAndEmpty(t *testing.T) {
	store := &stubStore{}
	store.On("RecentMessages", mock.Anything, "c1", DefaultWindow).Return(nil)

	out, err := Builder{Store: store}.Render(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestRender_StoreError(t *testing.T) {
	store := &stubStore{}
	store.On("RecentMessages", mock.Anything, "missing", 12).Return(core.ErrNotFound)

	_, err := Builder{Store: store}.Render(context.Background(), "missing", 12)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestAppend(t *testing.T) {
	assert.Equal(t, "A: x", Append("", "A", "x"))
	assert.Equal(t, "A: x\nB: y", Append("A: x", "B", "y"))
}

// Rendering the newest-first store result must equal rendering the last k
// messages in chronological order.
func TestRender_ChronologicalProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		k := rapid.IntRange(1, 50).Draw(t, "k")
		h := history(n)

		store := &stubStore{history: h}
		store.On("RecentMessages", mock.Anything, "c", k).Return(nil)

		got, err := Builder{Store: store}.Render(context.Background(), "c", k)
		if err != nil {
			t.Fatalf("render: %v", err)
		}

		start := 0
		if n > k {
			start = n - k
		}
		want := Format(h[start:])
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})
}
