package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	SendBufferSize = 256
	BacklogSize    = 64
)

// Client is one participant's live connection to a session room.
type Client struct {
	ID            uuid.UUID
	SessionID     string
	ParticipantID string
	Conn          *websocket.Conn
	Send          chan []byte
	Done          chan struct{}
	JoinedAt      time.Time

	closeOnce sync.Once
}

func NewClient(sessionID, participantID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:            uuid.New(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Conn:          conn,
		Send:          make(chan []byte, SendBufferSize),
		Done:          make(chan struct{}),
		JoinedAt:      time.Now(),
	}
}

// Deliver queues a frame without blocking.
func (c *Client) Deliver(data []byte) error {
	select {
	case <-c.Done:
		return ErrClientClosed
	default:
	}

	select {
	case c.Send <- data:
		return nil
	default:
		log.Warn().
			Str("sessionId", c.SessionID).
			Str("participantId", c.ParticipantID).
			Msg("client send buffer full, dropping frame")
		return ErrMessageBufferFull
	}
}

// Close closes the client connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// IsConnected checks if client is still connected
func (c *Client) IsConnected() bool {
	select {
	case <-c.Done:
		return false
	default:
		return true
	}
}

// Frame is a stamped relay frame routed to every other participant of a session.
type Frame struct {
	SessionID string          `json:"session_id"`
	SenderID  string          `json:"sender_id"`
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// Bus fans frames out across relay instances. Delivery to local clients
// happens only through the subscription callback.
type Bus interface {
	Publish(ctx context.Context, frame Frame) error
	Subscribe(sessionID string, deliver func(Frame)) (unsubscribe func())
}

// Room holds the connected participants of one session.
type Room struct {
	SessionID string

	mu          sync.Mutex
	clients     map[string]*Client
	backlog     *MessageBuffer
	unsubscribe func()
}

func newRoom(sessionID string) *Room {
	return &Room{
		SessionID: sessionID,
		clients:   make(map[string]*Client),
		backlog:   NewMessageBuffer(BacklogSize),
	}
}

// broadcast sends the frame to everyone but the sender. When keep is set,
// frames nobody else could receive are kept for the next participant to join.
func (r *Room) broadcast(frame Frame, keep bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for id, client := range r.clients {
		if id == frame.SenderID {
			continue
		}
		if err := client.Deliver(frame.Data); err == nil {
			delivered++
		}
	}

	_, senderHere := r.clients[frame.SenderID]
	if keep && delivered == 0 && len(r.clients) == 1 && senderHere && frame.Type != TypeUserDisconnected {
		if err := r.backlog.Add(BufferedMessage{SenderID: frame.SenderID, Data: frame.Data}); err != nil {
			log.Warn().Err(err).Str("sessionId", r.SessionID).Msg("dropping frame for absent peer")
		}
	}
	return delivered
}

// Hub manages all session rooms of this relay instance.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	bus   Bus
}

// NewHub creates a hub. A nil bus relays within this process only.
func NewHub(bus Bus) *Hub {
	return &Hub{
		rooms: make(map[string]*Room),
		bus:   bus,
	}
}

// Join adds a client to its session room. A previous connection of the same
// participant is closed and returned.
func (h *Hub) Join(client *Client) *Client {
	h.mu.Lock()
	room, exists := h.rooms[client.SessionID]
	if !exists {
		room = newRoom(client.SessionID)
		h.rooms[client.SessionID] = room
		if h.bus != nil {
			room.unsubscribe = h.bus.Subscribe(client.SessionID, h.deliver)
		}
	}

	room.mu.Lock()
	replaced := room.clients[client.ParticipantID]
	room.clients[client.ParticipantID] = client
	pending := room.backlog.FlushFor(client.ParticipantID)
	for _, msg := range pending {
		if err := client.Deliver(msg.Data); err != nil {
			log.Warn().Err(err).Str("sessionId", client.SessionID).Msg("backlog frame not delivered")
			break
		}
	}
	size := len(room.clients)
	room.mu.Unlock()
	h.mu.Unlock()

	if replaced != nil && replaced != client {
		log.Info().
			Str("sessionId", client.SessionID).
			Str("participantId", client.ParticipantID).
			Msg("closing previous connection for participant")
		replaced.Close()
	} else {
		replaced = nil
	}

	log.Info().
		Str("sessionId", client.SessionID).
		Str("participantId", client.ParticipantID).
		Int("participants", size).
		Int("backlog", len(pending)).
		Msg("participant joined")

	return replaced
}

// Leave removes the client if it is still the participant's current
// connection. It reports whether anything was removed.
func (h *Hub) Leave(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[client.SessionID]
	if !exists {
		return false
	}

	room.mu.Lock()
	current := room.clients[client.ParticipantID]
	if current != client {
		room.mu.Unlock()
		return false
	}
	delete(room.clients, client.ParticipantID)
	empty := len(room.clients) == 0
	room.mu.Unlock()

	if empty {
		delete(h.rooms, client.SessionID)
		if room.unsubscribe != nil {
			room.unsubscribe()
		}
	}

	log.Info().
		Str("sessionId", client.SessionID).
		Str("participantId", client.ParticipantID).
		Bool("roomClosed", empty).
		Msg("participant left")

	return true
}

// Relay stamps the sender onto a raw frame and routes it to the other
// participants of the session. Keepalive pings are not forwarded.
func (h *Hub) Relay(ctx context.Context, sessionID, senderID string, raw []byte) (MessageType, error) {
	data, msgType, err := StampSender(raw, senderID)
	if err != nil {
		return "", err
	}
	if msgType == TypePing {
		return msgType, nil
	}

	return msgType, h.dispatch(ctx, Frame{
		SessionID: sessionID,
		SenderID:  senderID,
		Type:      msgType,
		Data:      data,
	})
}

// NotifyDisconnected tells the remaining participants that participantID left.
func (h *Hub) NotifyDisconnected(ctx context.Context, sessionID, participantID string) error {
	data, err := json.Marshal(SignalMessage{Type: TypeUserDisconnected, UserID: participantID})
	if err != nil {
		return err
	}

	return h.dispatch(ctx, Frame{
		SessionID: sessionID,
		SenderID:  participantID,
		Type:      TypeUserDisconnected,
		Data:      data,
	})
}

func (h *Hub) dispatch(ctx context.Context, frame Frame) error {
	if h.bus == nil {
		h.deliver(frame)
		return nil
	}
	return h.bus.Publish(ctx, frame)
}

func (h *Hub) deliver(frame Frame) {
	h.mu.RLock()
	room := h.rooms[frame.SessionID]
	h.mu.RUnlock()

	if room == nil {
		return
	}

	// With a bus the partner may be connected to another replica, so an
	// undelivered frame here is not necessarily missed.
	delivered := room.broadcast(frame, h.bus == nil)

	log.Debug().
		Str("sessionId", frame.SessionID).
		Str("senderId", frame.SenderID).
		Str("type", string(frame.Type)).
		Int("delivered", delivered).
		Msg("frame relayed")
}

// Participants lists the participant ids connected to a session.
func (h *Hub) Participants(sessionID string) []string {
	h.mu.RLock()
	room := h.rooms[sessionID]
	h.mu.RUnlock()

	if room == nil {
		return nil
	}

	room.mu.Lock()
	ids := make([]string, 0, len(room.clients))
	for id := range room.clients {
		ids = append(ids, id)
	}
	room.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Close disconnects every client and drops all rooms.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, room := range rooms {
		room.mu.Lock()
		for _, client := range room.clients {
			client.Close()
		}
		room.mu.Unlock()
		if room.unsubscribe != nil {
			room.unsubscribe()
		}
	}
}
