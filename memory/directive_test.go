package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/lalomorales22/roundtable/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMemoryStore struct {
	mock.Mock
}

func (m *mockMemoryStore) Remember(ctx context.Context, mem core.Memory) error {
	return m.Called(ctx, mem).Error(0)
}

func (m *mockMemoryStore) Recall(ctx context.Context, agent string, limit int) ([]core.Memory, error) {
	args := m.Called(ctx, agent, limit)
	return args.Get(0).([]core.Memory), args.Error(1)
}

func TestExtractDirectives(t *testing.T) {
	text := "Plan agreed.\nMEMORY_STORE: stack : Go with SQLite\nMore text.\nMEMORY_STORE:deadline:Friday"

	cleaned, ds := ExtractDirectives(text)

	assert.Equal(t, []Directive{{Key: "stack", Value: "Go with SQLite"}, {Key: "deadline", Value: "Friday"}}, ds)
	assert.Equal(t, "Plan agreed.\n[Stored memory: stack]\nMore text.\n[Stored memory: deadline]", cleaned)

	plain, none := ExtractDirectives("nothing here")
	assert.Empty(t, none)
	assert.Equal(t, "nothing here", plain)
}

func TestRemember(t *testing.T) {
	store := &mockMemoryStore{}
	store.On("Remember", mock.Anything, mock.MatchedBy(func(m core.Memory) bool {
		return m.Agent == "Claude" && m.Key == "lang" && m.Value == "Go" && m.Importance == DefaultImportance
	})).Return(nil).Once()

	cleaned, directives := ExtractDirectives("MEMORY_STORE:lang:Go")
	assert.Equal(t, "[Stored memory: lang]", cleaned)

	n, err := Remember(context.Background(), store, "Claude", directives)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	store.AssertExpectations(t)
}

func TestRemember_StopsAtFirstFailure(t *testing.T) {
	store := &mockMemoryStore{}
	store.On("Remember", mock.Anything, mock.MatchedBy(func(m core.Memory) bool { return m.Key == "a" })).Return(nil).Once()
	store.On("Remember", mock.Anything, mock.MatchedBy(func(m core.Memory) bool { return m.Key == "b" })).Return(errors.New("disk full")).Once()

	n, err := Remember(context.Background(), store, "A", []Directive{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}})
	require.Error(t, err)
	assert.Equal(t, 1, n)
	store.AssertExpectations(t)
}

func TestPersonaWithMemories(t *testing.T) {
	assert.Equal(t, "You are A.", PersonaWithMemories("You are A.", nil))

	got := PersonaWithMemories("You are A.", []core.Memory{{Key: "k1", Value: "v1"}, {Key: "k2", Value: "v2"}})
	assert.Equal(t, "You are A.\n\nYour stored memories:\n- k1: v1\n- k2: v2", got)
}
