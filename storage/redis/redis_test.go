package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := New(context.Background(), func(o *Options) {
		o.Addr = mr.Addr()
		o.Prefix = "test"
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, mr
}

func TestStore_Suite(t *testing.T) {
	testutil.RunStoreSuite(t, func(t *testing.T) core.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	id := testutil.NewConversationBuilder(s).Name("keys").Message("User", "hi").Message("Claude", "hello").Build(t)

	assert.True(t, mr.Exists("test:conv:"+id))
	assert.True(t, mr.Exists("test:msgs:"+id))

	members, err := mr.ZMembers("test:convs")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)

	raw, err := mr.List("test:msgs:" + id)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	speaker, ok, err := s.LastSpeaker(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Claude", speaker)
}

func TestStore_Sequence(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	c, err := s.CreateConversation(ctx, "seq")
	require.NoError(t, err)

	a, err := s.AppendMessage(ctx, c.ID, "A", "1")
	require.NoError(t, err)
	b, err := s.AppendMessage(ctx, c.ID, "B", "2")
	require.NoError(t, err)

	assert.Greater(t, b.Seq, a.Seq)
}

func TestStore_WriteConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	c, err := s.CreateConversation(ctx, "busy")
	require.NoError(t, err)

	// Another writer touches the conversation between WATCH and EXEC on
	// every attempt.
	s.beforeExec = func(ctx context.Context, id string) {
		s.client.RPush(ctx, s.msgsKey(id), "{}")
	}

	_, err = s.AppendMessage(ctx, c.ID, "A", "lost")
	assert.ErrorIs(t, err, core.ErrWriteConflict)

	s.beforeExec = nil
	m, err := s.AppendMessage(ctx, c.ID, "A", "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", m.Body)
}

func TestStore_DeleteReleasesLock(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	c, err := s.CreateConversation(ctx, "short lived")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, c.ID, "A", "hi")
	require.NoError(t, err)

	_, ok := s.locks.Load(c.ID)
	require.True(t, ok)

	require.NoError(t, s.DeleteConversation(ctx, c.ID))
	_, ok = s.locks.Load(c.ID)
	assert.False(t, ok)

	_, err = s.AppendMessage(ctx, "missing", "A", "hi")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, ok = s.locks.Load("missing")
	assert.False(t, ok)
}

func TestStore_PingAndFromClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewFromClient(client)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))

	c, err := s.CreateConversation(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, mr.Exists("roundtable:conv:"+c.ID))
}

func TestNew_ConnectError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New(context.Background(), func(o *Options) { o.Addr = addr })
	assert.Error(t, err)
}
