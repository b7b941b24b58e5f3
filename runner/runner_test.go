package runner

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/engine"
	"github.com/lalomorales22/roundtable/flow"
	"github.com/lalomorales22/roundtable/internal/testutil"
	"github.com/lalomorales22/roundtable/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRounds struct {
	mock.Mock
}

func (m *mockRounds) RunRound(ctx context.Context, conversationID string, round, maxRounds int) (*core.RoundResult, error) {
	args := m.Called(ctx, conversationID, round, maxRounds)
	switch v := args.Get(0).(type) {
	case func(context.Context, string, int, int) *core.RoundResult:
		return v(ctx, conversationID, round, maxRounds), args.Error(1)
	case *core.RoundResult:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func result(round int, cont bool) *core.RoundResult {
	return &core.RoundResult{Round: round, Speakers: []string{"A"}, ShouldContinue: cont, NextRound: round + 1}
}

func TestRunCascade_StopsWhenRoundDeclines(t *testing.T) {
	rounds := &mockRounds{}
	rounds.On("RunRound", mock.Anything, "c1", 1, 5).Return(result(1, true), nil).Once()
	rounds.On("RunRound", mock.Anything, "c1", 2, 5).Return(result(2, true), nil).Once()
	rounds.On("RunRound", mock.Anything, "c1", 3, 5).Return(result(3, false), nil).Once()

	got, err := New(rounds).RunCascade(context.Background(), "c1", 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[2].Round)
	rounds.AssertExpectations(t)
}

func TestRunCascade_DefaultMaxRounds(t *testing.T) {
	rounds := &mockRounds{}
	rounds.On("RunRound", mock.Anything, "c1", 1, 2).Return(result(1, true), nil).Once()
	rounds.On("RunRound", mock.Anything, "c1", 2, 2).Return(result(2, true), nil).Once()

	r := New(rounds, func(o *Options) { o.MaxRounds = 2 })
	got, err := r.RunCascade(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	rounds.AssertExpectations(t)
}

func TestRunCascade_ErrorKeepsCompletedRounds(t *testing.T) {
	boom := errors.New("store down")
	rounds := &mockRounds{}
	rounds.On("RunRound", mock.Anything, "c1", 1, 4).Return(result(1, true), nil).Once()
	rounds.On("RunRound", mock.Anything, "c1", 2, 4).Return(nil, boom).Once()

	r := New(rounds)
	got, err := r.RunCascade(context.Background(), "c1", 4)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "round 2")
	assert.Len(t, got, 1)
	assert.False(t, r.Active("c1"))
}

func TestRunCascade_OnePerConversation(t *testing.T) {
	release := make(chan struct{})
	rounds := &mockRounds{}
	rounds.On("RunRound", mock.Anything, "c1", 1, 3).
		Run(func(mock.Arguments) { <-release }).
		Return(result(1, false), nil).Once()

	r := New(rounds)
	runID, results, errs, err := r.Start(context.Background(), "c1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	assert.True(t, r.Active("c1"))

	_, err = r.RunCascade(context.Background(), "c1", 3)
	assert.ErrorIs(t, err, ErrCascadeActive)

	close(release)

	var got []core.RoundResult
	for res := range results {
		got = append(got, res)
	}
	assert.Len(t, got, 1)
	assert.NoError(t, <-errs)
	assert.False(t, r.Active("c1"))
}

func TestStart_Cancel(t *testing.T) {
	rounds := &mockRounds{}
	rounds.On("RunRound", mock.Anything, "c1", mock.Anything, 10).
		Return(func(_ context.Context, _ string, round, _ int) *core.RoundResult { return result(round, true) }, nil)

	r := New(rounds, func(o *Options) { o.RoundPause = 50 * time.Millisecond })
	runID, results, errs, err := r.Start(context.Background(), "c1", 10)
	require.NoError(t, err)

	first := <-results
	assert.Equal(t, 1, first.Round)
	require.NoError(t, r.Cancel(runID))

	for range results {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)

	assert.Error(t, r.Cancel(runID))
}

func TestRunCascade_WithEngine(t *testing.T) {
	store := session.NewStore()
	r := testutil.NewRosterBuilder(client.NewMock()).Agents("A", "B", "C").Build(t)

	eng, err := engine.New(r, func(o *engine.Options) {
		o.Store = store
		o.Selector = flow.NewSelector(func(o *flow.Options) { o.Rand = rand.New(rand.NewPCG(3, 4)) })
		o.Config.ContinueThreshold = 100
	})
	require.NoError(t, err)

	id := testutil.NewConversationBuilder(store).Message("User", "debate").Build(t)

	got, err := New(eng).RunCascade(context.Background(), id, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)

	total := 0
	for i, res := range got {
		assert.Equal(t, i+1, res.Round)
		total += len(res.Speakers)
	}
	assert.False(t, got[3].ShouldContinue)

	msgs, err := store.Messages(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, msgs, total+1)
}
