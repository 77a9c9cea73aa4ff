package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) SignalMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg SignalMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatalf("no frame queued for participant %s", c.ParticipantID)
		return SignalMessage{}
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	assert.Len(t, c.Send, 0)
}

func TestHub_RelayReachesOthersOnly(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient("5", "1", nil)
	b := NewClient("5", "2", nil)
	other := NewClient("6", "3", nil)
	hub.Join(a)
	hub.Join(b)
	hub.Join(other)

	msgType, err := hub.Relay(context.Background(), "5", "1", []byte(`{"type":"chat","content":"namaste","sender_name":"Ravi"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeChat, msgType)

	msg := receive(t, b)
	assert.Equal(t, "namaste", msg.Content)
	assert.Equal(t, "1", msg.SenderID)
	assertNothingQueued(t, a)
	assertNothingQueued(t, other)
}

func TestHub_RelayRejectsMalformed(t *testing.T) {
	hub := NewHub(nil)
	_, err := hub.Relay(context.Background(), "5", "1", []byte(`{"content":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestHub_JoinReplacesPreviousConnection(t *testing.T) {
	hub := NewHub(nil)
	first := NewClient("5", "1", nil)
	second := NewClient("5", "1", nil)

	assert.Nil(t, hub.Join(first))
	assert.Same(t, first, hub.Join(second))
	assert.False(t, first.IsConnected())
	assert.True(t, second.IsConnected())

	assert.False(t, hub.Leave(first), "stale connection must not evict its replacement")
	assert.Equal(t, []string{"1"}, hub.Participants("5"))

	assert.True(t, hub.Leave(second))
	assert.Empty(t, hub.Participants("5"))
}

func TestHub_NotifyDisconnected(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient("5", "1", nil)
	b := NewClient("5", "2", nil)
	hub.Join(a)
	hub.Join(b)

	require.True(t, hub.Leave(a))
	require.NoError(t, hub.NotifyDisconnected(context.Background(), "5", "1"))

	msg := receive(t, b)
	assert.Equal(t, TypeUserDisconnected, msg.Type)
	assert.Equal(t, "1", msg.UserID)
}

func TestHub_BacklogFlushedToLateJoiner(t *testing.T) {
	hub := NewHub(nil)
	caller := NewClient("5", "1", nil)
	hub.Join(caller)

	_, err := hub.Relay(context.Background(), "5", "1", []byte(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`))
	require.NoError(t, err)
	assertNothingQueued(t, caller)

	callee := NewClient("5", "2", nil)
	hub.Join(callee)

	msg := receive(t, callee)
	assert.Equal(t, TypeOffer, msg.Type)
	assert.Equal(t, "1", msg.SenderID)

	// already flushed
	rejoined := NewClient("5", "2", nil)
	hub.Join(rejoined)
	assertNothingQueued(t, rejoined)
}

func TestHub_BacklogDroppedWithEmptyRoom(t *testing.T) {
	hub := NewHub(nil)
	caller := NewClient("5", "1", nil)
	hub.Join(caller)
	_, err := hub.Relay(context.Background(), "5", "1", []byte(`{"type":"chat","content":"hello?"}`))
	require.NoError(t, err)
	hub.Leave(caller)

	callee := NewClient("5", "2", nil)
	hub.Join(callee)
	assertNothingQueued(t, callee)
}

func TestHub_DeliverSkipsClosedClient(t *testing.T) {
	c := NewClient("5", "1", nil)
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Deliver([]byte(`{}`)), ErrClientClosed)
}

func TestHub_DeliverFullBuffer(t *testing.T) {
	c := NewClient("5", "1", nil)
	var err error
	for i := 0; i <= cap(c.Send); i++ {
		err = c.Deliver([]byte(`{}`))
	}
	assert.ErrorIs(t, err, ErrMessageBufferFull)
}

type fakeBus struct {
	mu          sync.Mutex
	published   []Frame
	subscribers map[string]func(Frame)
	cancelled   []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{subscribers: make(map[string]func(Frame))}
}

func (b *fakeBus) Publish(_ context.Context, frame Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, frame)
	return nil
}

func (b *fakeBus) Subscribe(sessionID string, deliver func(Frame)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sessionID] = deliver
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cancelled = append(b.cancelled, sessionID)
	}
}

func (b *fakeBus) fanOut() {
	b.mu.Lock()
	frames := b.published
	b.published = nil
	subs := make(map[string]func(Frame), len(b.subscribers))
	for k, v := range b.subscribers {
		subs[k] = v
	}
	b.mu.Unlock()

	for _, f := range frames {
		if deliver := subs[f.SessionID]; deliver != nil {
			deliver(f)
		}
	}
}

func TestHub_WithBusDeliversThroughSubscription(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus)
	a := NewClient("5", "1", nil)
	b := NewClient("5", "2", nil)
	hub.Join(a)
	hub.Join(b)

	_, err := hub.Relay(context.Background(), "5", "2", []byte(`{"type":"answer","sdp":{"type":"answer","sdp":"v=0"}}`))
	require.NoError(t, err)
	assertNothingQueued(t, a)

	require.Len(t, bus.published, 1)
	assert.Equal(t, "2", bus.published[0].SenderID)
	assert.Equal(t, TypeAnswer, bus.published[0].Type)

	bus.fanOut()
	msg := receive(t, a)
	assert.Equal(t, TypeAnswer, msg.Type)
	assert.Equal(t, "2", msg.SenderID)

	hub.Leave(a)
	hub.Leave(b)
	assert.Equal(t, []string{"5"}, bus.cancelled)
}

func TestHub_WithBusDoesNotBacklogLocally(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus)
	caller := NewClient("5", "1", nil)
	hub.Join(caller)

	_, err := hub.Relay(context.Background(), "5", "1", []byte(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`))
	require.NoError(t, err)
	bus.fanOut()

	callee := NewClient("5", "2", nil)
	hub.Join(callee)
	assertNothingQueued(t, callee)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient("5", "1", nil)
	hub.Join(a)
	hub.Close()
	assert.False(t, a.IsConnected())
	assert.Empty(t, hub.Participants("5"))
}

func TestHub_PingNotForwarded(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient("5", "1", nil)
	b := NewClient("5", "2", nil)
	hub.Join(a)
	hub.Join(b)

	msgType, err := hub.Relay(context.Background(), "5", "1", []byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePing, msgType)
	assertNothingQueued(t, b)
}
