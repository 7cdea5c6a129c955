package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-chat-server/internal/rag"
)

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func startHub(t *testing.T, origins []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(echoAnswerer{}, newRedisStore(t), origins, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_MessageIsBroadcast(t *testing.T) {
	hub, url := startHub(t, nil)
	alice := dial(t, url)
	bob := dial(t, url)
	waitForClients(t, hub, 2)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "send_message", "data": "hi"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		f := readFrame(t, conn)
		assert.Equal(t, EventReceiveMessage, f.Event)
		assert.Equal(t, map[string]any{"userquery": "hi", "answer": "answer to hi"}, f.Data)
	}
}

func TestHub_ResetAnswersRequesterOnly(t *testing.T) {
	hub, url := startHub(t, nil)
	alice := dial(t, url)
	bob := dial(t, url)
	waitForClients(t, hub, 2)

	require.NoError(t, alice.WriteJSON(map[string]any{"event": "reset"}))

	f := readFrame(t, alice)
	assert.Equal(t, EventResetDone, f.Event)
	assert.Equal(t, []any{}, f.Data)

	// bob sees the next broadcast, not the reset acknowledgement.
	require.NoError(t, bob.WriteJSON(map[string]any{"event": "send_message", "data": "after"}))
	f = readFrame(t, bob)
	assert.Equal(t, EventReceiveMessage, f.Event)
}

func TestHub_IgnoresMalformedEvents(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send_message", "data": 42}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "dance"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send_message", "data": "ok"}))

	f := readFrame(t, conn)
	assert.Equal(t, map[string]any{"userquery": "ok", "answer": "answer to ok"}, f.Data)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)
}

func TestHub_OriginAllowList(t *testing.T) {
	_, url := startHub(t, []string{"https://chat.example.com"})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://chat.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHub_SendToUnknownSessionIsIgnored(t *testing.T) {
	hub := NewHub(echoAnswerer{}, newRedisStore(t), nil, nil)
	hub.Send("nobody", Event{Name: EventResetDone, Data: []any{}})
	hub.Broadcast(Event{Name: EventReceiveMessage})
	assert.Zero(t, hub.Count())
}

func TestHub_CloseDropsConnections(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	hub.Close()
	waitForClients(t, hub, 0)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

type slowAnswerer struct{ delay time.Duration }

func (a slowAnswerer) Answer(ctx context.Context, q string) rag.Answer {
	select {
	case <-time.After(a.delay):
		return rag.Answer{Answer: "answer to " + q}
	case <-ctx.Done():
		return rag.Answer{Answer: rag.UnavailableAnswer}
	}
}

func TestHub_SlowAnswerKeepsConnection(t *testing.T) {
	store := newRedisStore(t)
	hub := NewHub(slowAnswerer{delay: 700 * time.Millisecond}, store, nil, nil, WithKeepalive(200*time.Millisecond))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	waitForClients(t, hub, 1)

	// Reading keeps the client answering pings.
	frames := make(chan frame, 4)
	go func() {
		defer close(frames)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			frames <- f
		}
	}()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send_message", "data": "first"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send_message", "data": "second"}))

	for _, q := range []string{"first", "second"} {
		select {
		case f, ok := <-frames:
			require.True(t, ok, "connection closed before %q was answered", q)
			assert.Equal(t, EventReceiveMessage, f.Event)
			assert.Equal(t, map[string]any{"userquery": q, "answer": "answer to " + q}, f.Data)
		case <-time.After(5 * time.Second):
			t.Fatalf("no answer for %q", q)
		}
	}

	assert.Equal(t, 1, hub.Count())
	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Turns, 2)
}

func TestHub_SilentClientIsDropped(t *testing.T) {
	hub := NewHub(echoAnswerer{}, newRedisStore(t), nil, nil, WithKeepalive(100*time.Millisecond))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	// A client that never reads never answers pings.
	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	waitForClients(t, hub, 1)
	waitForClients(t, hub, 0)
}
