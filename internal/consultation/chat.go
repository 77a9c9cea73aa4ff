package consultation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// System chat lines.
const (
	MsgConnecting          = "Connecting to server..."
	MsgSignalingConnected  = "System: Connected to signaling server."
	MsgPartnerDisconnected = "Partner disconnected."
	MsgSessionEnded        = "This session has ended."
	MsgInsufficientBalance = "Insufficient balance to start call."
	MsgConnectFailed       = "Failed to connect. Please try again."
	MsgCallEnded           = "Call ended."
	MsgConnectedWith       = "Connected with %s."
)

const systemSender = "System"

type ChatMessage struct {
	ID                string
	Text              string
	SenderDisplayName string
	TimestampDisplay  string
	System            bool
	SentAt            time.Time
}

// ChatLog is the append-only, in-memory history of one room.
type ChatLog struct {
	mu        sync.RWMutex
	messages  []ChatMessage
	listeners map[int]func(ChatMessage)
	nextID    int
	now       func() time.Time
}

func NewChatLog() *ChatLog {
	return &ChatLog{
		listeners: make(map[int]func(ChatMessage)),
		now:       time.Now,
	}
}

func (l *ChatLog) Append(text, sender string) ChatMessage {
	return l.append(text, sender, false)
}

func (l *ChatLog) AppendSystem(text string) ChatMessage {
	return l.append(text, systemSender, true)
}

func (l *ChatLog) append(text, sender string, system bool) ChatMessage {
	at := l.now()
	msg := ChatMessage{
		ID:                uuid.NewString(),
		Text:              text,
		SenderDisplayName: sender,
		TimestampDisplay:  at.Format("15:04"),
		System:            system,
		SentAt:            at,
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	listeners := make([]func(ChatMessage), 0, len(l.listeners))
	for _, fn := range l.listeners {
		listeners = append(listeners, fn)
	}
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
	return msg
}

// Messages returns a copy of the history in append order.
func (l *ChatLog) Messages() []ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// SystemLines returns how many system lines carry exactly text.
func (l *ChatLog) SystemLines(text string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, m := range l.messages {
		if m.System && m.Text == text {
			n++
		}
	}
	return n
}

// OnAppend registers fn for every new line and returns its unsubscribe func.
func (l *ChatLog) OnAppend(fn func(ChatMessage)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}
