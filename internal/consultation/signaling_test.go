package consultation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/astroveda/consult/internal/websocket"
)

// echoRelay upgrades every request, sends greeting frames, then echoes each
// frame back with a sender id.
type echoRelay struct {
	server   *httptest.Server
	mu       sync.Mutex
	paths    []string
	tokens   []string
	conns    []*websocket.Conn
	greeting [][]byte
}

func newEchoRelay(t *testing.T, greeting ...string) *echoRelay {
	t.Helper()
	r := &echoRelay{}
	for _, g := range greeting {
		r.greeting = append(r.greeting, []byte(g))
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.paths = append(r.paths, req.URL.Path)
		r.tokens = append(r.tokens, req.URL.Query().Get("token"))
		r.conns = append(r.conns, conn)
		r.mu.Unlock()

		for _, g := range r.greeting {
			if err := conn.WriteMessage(websocket.TextMessage, g); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			stamped, _, err := ws.StampSender(data, "echo")
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, stamped); err != nil {
				return
			}
		}
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *echoRelay) dropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
}

func collect(ch *Channel) func() []ws.SignalMessage {
	var mu sync.Mutex
	var got []ws.SignalMessage
	ch.OnMessage(func(m ws.SignalMessage) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	return func() []ws.SignalMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]ws.SignalMessage(nil), got...)
	}
}

func TestSignalURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/42/7?token=tok"},
		{"https://api.example.com/", "wss://api.example.com/ws/42/7?token=tok"},
		{"ws://relay:9000/signal", "ws://relay:9000/signal/ws/42/7?token=tok"},
	}
	for _, tc := range tests {
		t.Run(tc.base, func(t *testing.T) {
			got, err := SignalURL(tc.base, "42", "7", "tok")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := SignalURL("ftp://example.com", "42", "7", "tok")
	assert.Error(t, err)
}

func TestChannel_SendAndReceive(t *testing.T) {
	relay := newEchoRelay(t)

	ch, err := Open(context.Background(), relay.server.URL, "secret", "42", "7")
	require.NoError(t, err)
	defer ch.Close()

	received := collect(ch)
	require.True(t, ch.IsOpen())
	require.NoError(t, ch.Send(ws.NewChat("hello", "Asha")))

	require.Eventually(t, func() bool { return len(received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := received()[0]
	assert.Equal(t, ws.TypeChat, msg.Type)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "Asha", msg.SenderName)
	assert.Equal(t, "echo", msg.SenderID)

	relay.mu.Lock()
	assert.Equal(t, []string{"/ws/42/7"}, relay.paths)
	assert.Equal(t, []string{"secret"}, relay.tokens)
	relay.mu.Unlock()
}

func TestChannel_MalformedFramesSkipped(t *testing.T) {
	relay := newEchoRelay(t,
		"not json",
		`{"content":"missing type"}`,
		`{"type":"chat","content":"after the noise"}`,
	)

	ch, err := Open(context.Background(), relay.server.URL, "secret", "42", "7")
	require.NoError(t, err)
	defer ch.Close()

	received := collect(ch)
	require.Eventually(t, func() bool { return len(received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "after the noise", received()[0].Content)
	assert.True(t, ch.IsOpen())
}

func TestChannel_EarlyFramesDeliveredToFirstHandler(t *testing.T) {
	relay := newEchoRelay(t, `{"type":"user_disconnected","user_id":"9"}`)

	ch, err := Open(context.Background(), relay.server.URL, "secret", "42", "7")
	require.NoError(t, err)
	defer ch.Close()

	require.Eventually(t, func() bool {
		ch.mu.RLock()
		defer ch.mu.RUnlock()
		return len(ch.early) == 1
	}, 2*time.Second, 10*time.Millisecond)

	received := collect(ch)
	got := received()
	require.Len(t, got, 1)
	assert.Equal(t, ws.TypeUserDisconnected, got[0].Type)
	assert.Equal(t, "9", got[0].UserID)
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	relay := newEchoRelay(t)

	ch, err := Open(context.Background(), relay.server.URL, "secret", "42", "7")
	require.NoError(t, err)

	var mu sync.Mutex
	closes := 0
	ch.OnClose(func() {
		mu.Lock()
		closes++
		mu.Unlock()
	})

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	mu.Lock()
	assert.Equal(t, 1, closes)
	mu.Unlock()
	assert.False(t, ch.IsOpen())
	assert.ErrorIs(t, ch.Send(ws.NewChat("late", "Asha")), ErrChannelNotOpen)
}

func TestChannel_RemoteCloseClosesChannel(t *testing.T) {
	relay := newEchoRelay(t)

	ch, err := Open(context.Background(), relay.server.URL, "secret", "42", "7")
	require.NoError(t, err)

	closed := make(chan struct{})
	ch.OnClose(func() { close(closed) })

	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return len(relay.conns) == 1
	}, 2*time.Second, 10*time.Millisecond)
	relay.dropAll()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after the relay dropped it")
	}
	assert.False(t, ch.IsOpen())
}

func TestOpen_Unreachable(t *testing.T) {
	relay := newEchoRelay(t)
	base := relay.server.URL
	relay.server.Close()

	_, err := Open(context.Background(), base, "secret", "42", "7")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "dial signaling relay"))
}
