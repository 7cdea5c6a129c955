package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/session"
)

type echoAnswerer struct{}

func (echoAnswerer) Answer(_ context.Context, q string) rag.Answer {
	return rag.Answer{Answer: "answer to " + q}
}

type sent struct {
	to string // empty for broadcast
	ev Event
}

type recorder struct {
	mu     sync.Mutex
	events []sent
}

func (r *recorder) Broadcast(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{ev: ev})
}

func (r *recorder) Send(sid string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{to: sid, ev: ev})
}

type failingStore struct{}

func (failingStore) Append(context.Context, string, session.Turn) ([]session.Turn, error) {
	return nil, errors.New("redis down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("redis down") }
func (failingStore) Reset(context.Context) error         { return errors.New("redis down") }

func newRedisStore(t *testing.T) *session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewStore(client, nil)
}

func TestController_MessageRecordsAndBroadcasts(t *testing.T) {
	store := newRedisStore(t)
	out := &recorder{}
	c := NewController(echoAnswerer{}, store, out, nil)
	ctx := context.Background()

	c.Connect("s1")
	assert.Equal(t, StateConnected, c.State("s1"))

	require.NoError(t, c.Message(ctx, "s1", "hi"))
	assert.Equal(t, StateActive, c.State("s1"))

	turns, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []session.Turn{{UserQuery: "hi", Answer: "answer to hi"}}, turns)

	require.Len(t, out.events, 1)
	assert.Empty(t, out.events[0].to)
	assert.Equal(t, EventReceiveMessage, out.events[0].ev.Name)
	assert.Equal(t, session.Turn{UserQuery: "hi", Answer: "answer to hi"}, out.events[0].ev.Data)
}

func TestController_HistoryKeepsOrder(t *testing.T) {
	store := newRedisStore(t)
	c := NewController(echoAnswerer{}, store, &recorder{}, nil)
	ctx := context.Background()

	c.Connect("s1")
	for _, q := range []string{"one", "two", "three"} {
		require.NoError(t, c.Message(ctx, "s1", q))
	}

	turns, _, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "one", turns[0].UserQuery)
	assert.Equal(t, "three", turns[2].UserQuery)
}

func TestController_StoreFailureStillBroadcasts(t *testing.T) {
	out := &recorder{}
	c := NewController(echoAnswerer{}, failingStore{}, out, nil)
	ctx := context.Background()

	c.Connect("s1")
	require.NoError(t, c.Message(ctx, "s1", "hi"))
	require.Len(t, out.events, 1)

	require.NoError(t, c.Reset(ctx, "s1"))
	require.Len(t, out.events, 2)
	assert.Equal(t, "s1", out.events[1].to)

	assert.NoError(t, c.Disconnect(ctx, "s1"))
}

func TestController_ResetRepliesToRequesterOnly(t *testing.T) {
	store := newRedisStore(t)
	out := &recorder{}
	c := NewController(echoAnswerer{}, store, out, nil)
	ctx := context.Background()

	c.Connect("a")
	c.Connect("b")
	require.NoError(t, c.Message(ctx, "a", "q1"))
	require.NoError(t, c.Message(ctx, "b", "q2"))

	require.NoError(t, c.Reset(ctx, "a"))

	last := out.events[len(out.events)-1]
	assert.Equal(t, "a", last.to)
	assert.Equal(t, EventResetDone, last.ev.Name)
	assert.Equal(t, []session.Turn{}, last.ev.Data)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "reset clears every session")
}

func TestController_ResetKeepsState(t *testing.T) {
	c := NewController(echoAnswerer{}, newRedisStore(t), &recorder{}, nil)
	ctx := context.Background()

	c.Connect("s1")
	require.NoError(t, c.Reset(ctx, "s1"))
	assert.Equal(t, StateConnected, c.State("s1"), "only a message activates a session")

	require.NoError(t, c.Message(ctx, "s1", "hi"))
	require.NoError(t, c.Reset(ctx, "s1"))
	assert.Equal(t, StateActive, c.State("s1"))
}

func TestController_DisconnectDeletesHistory(t *testing.T) {
	store := newRedisStore(t)
	c := NewController(echoAnswerer{}, store, &recorder{}, nil)
	ctx := context.Background()

	c.Connect("s1")
	c.Connect("s2")
	require.NoError(t, c.Message(ctx, "s1", "hi"))
	require.NoError(t, c.Message(ctx, "s2", "hello"))

	require.NoError(t, c.Disconnect(ctx, "s1"))
	assert.Equal(t, StateClosed, c.State("s1"))

	_, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, ok, "other sessions are untouched")
}

func TestController_ClosedSessionRejectsEvents(t *testing.T) {
	out := &recorder{}
	c := NewController(echoAnswerer{}, newRedisStore(t), out, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.Message(ctx, "ghost", "hi"), ErrSessionClosed)
	assert.ErrorIs(t, c.Reset(ctx, "ghost"), ErrSessionClosed)
	assert.ErrorIs(t, c.Disconnect(ctx, "ghost"), ErrSessionClosed)

	c.Connect("s1")
	require.NoError(t, c.Disconnect(ctx, "s1"))
	assert.ErrorIs(t, c.Message(ctx, "s1", "late"), ErrSessionClosed)
	assert.Empty(t, out.events)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
}
