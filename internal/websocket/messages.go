package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
)

// MessageType is the discriminator of every signaling frame.
type MessageType string

const (
	TypeOffer            MessageType = "offer"
	TypeAnswer           MessageType = "answer"
	TypeCandidate        MessageType = "candidate"
	TypeChat             MessageType = "chat"
	TypeUserDisconnected MessageType = "user_disconnected"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
)

// IsCallControl reports whether the type drives the peer connection.
func (t MessageType) IsCallControl() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeCandidate
}

// SignalMessage is the flat frame exchanged over the relay. Only the fields
// relevant to Type are set; the relay adds SenderID.
type SignalMessage struct {
	Type       MessageType                `json:"type"`
	SDP        *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Content    string                     `json:"content,omitempty"`
	SenderName string                     `json:"sender_name,omitempty"`
	SenderID   string                     `json:"sender_id,omitempty"`
	UserID     string                     `json:"user_id,omitempty"`
}

func NewOffer(sdp webrtc.SessionDescription) SignalMessage {
	return SignalMessage{Type: TypeOffer, SDP: &sdp}
}

func NewAnswer(sdp webrtc.SessionDescription) SignalMessage {
	return SignalMessage{Type: TypeAnswer, SDP: &sdp}
}

func NewCandidate(c webrtc.ICECandidateInit) SignalMessage {
	return SignalMessage{Type: TypeCandidate, Candidate: &c}
}

func NewChat(content, senderName string) SignalMessage {
	return SignalMessage{Type: TypeChat, Content: content, SenderName: senderName}
}

// Validate checks that the fields required by Type are present.
func (m SignalMessage) Validate() error {
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == nil || strings.TrimSpace(m.SDP.SDP) == "" {
			return fmt.Errorf("%s: empty sdp", m.Type)
		}
	case TypeCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%s: missing candidate", m.Type)
		}
	case TypeChat:
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%s: empty content", m.Type)
		}
	case "":
		return ErrInvalidMessage
	}
	return nil
}

// StampSender sets sender_id on a raw JSON object frame while leaving every
// other field untouched, and returns the frame's type.
func StampSender(raw []byte, senderID string) ([]byte, MessageType, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, "", ErrInvalidMessage
	}

	var msgType MessageType
	if err := json.Unmarshal(fields["type"], &msgType); err != nil || msgType == "" {
		return nil, "", ErrInvalidMessage
	}

	id, err := json.Marshal(senderID)
	if err != nil {
		return nil, "", err
	}
	fields["sender_id"] = id

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, "", err
	}
	return out, msgType, nil
}

// MessageBuffer holds frames relayed while nobody else was in the room so the
// next participant to join still receives them.
type MessageBuffer struct {
	mu       sync.Mutex
	messages []BufferedMessage
	maxSize  int
}

// BufferedMessage is a stamped frame and the participant that sent it.
type BufferedMessage struct {
	SenderID string
	Data     []byte
}

// NewMessageBuffer creates a new message buffer
func NewMessageBuffer(maxSize int) *MessageBuffer {
	return &MessageBuffer{
		messages: make([]BufferedMessage, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Add adds a message to the buffer
// Returns error if buffer is full
func (mb *MessageBuffer) Add(msg BufferedMessage) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if len(mb.messages) >= mb.maxSize {
		return ErrMessageBufferFull
	}

	mb.messages = append(mb.messages, msg)
	return nil
}

// FlushFor removes and returns the messages not sent by participantID. The
// participant's own frames stay buffered for whoever joins next.
func (mb *MessageBuffer) FlushFor(participantID string) []BufferedMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	var out []BufferedMessage
	kept := mb.messages[:0]
	for _, m := range mb.messages {
		if m.SenderID == participantID {
			kept = append(kept, m)
			continue
		}
		out = append(out, m)
	}
	mb.messages = kept
	return out
}

// Size returns current buffer size
func (mb *MessageBuffer) Size() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return len(mb.messages)
}
