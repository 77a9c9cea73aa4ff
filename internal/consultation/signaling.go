package consultation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	ws "github.com/astroveda/consult/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Signaler is the outbound half of a signaling channel.
type Signaler interface {
	Send(msg ws.SignalMessage) error
}

// Channel is a participant's connection to the signaling relay for one
// session. It never reconnects.
type Channel struct {
	SessionID     string
	ParticipantID string

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once

	mu       sync.RWMutex
	handlers []func(ws.SignalMessage)
	early    []ws.SignalMessage
	onClose  []func()
}

// SignalURL builds {base}/ws/{session}/{participant}?token=, switching http
// schemes to their websocket equivalents.
func SignalURL(baseURL, sessionID, participantID, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse signaling url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported signaling scheme %q", u.Scheme)
	}

	u.Path = fmt.Sprintf("%s/ws/%s/%s", u.Path, url.PathEscape(sessionID), url.PathEscape(participantID))
	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials the relay and starts the channel's pumps.
func Open(ctx context.Context, baseURL, token, sessionID, participantID string) (*Channel, error) {
	endpoint, err := SignalURL(baseURL, sessionID, participantID, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial signaling relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial signaling relay: %w", err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, fmt.Errorf("dial signaling relay: unexpected status %d", resp.StatusCode)
	}

	c := &Channel{
		SessionID:     sessionID,
		ParticipantID: participantID,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
	}
	c.open.Store(true)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("component", "signaling").
		Str("sessionId", sessionID).
		Str("participantId", participantID).
		Msg("signaling channel open")

	return c, nil
}

func (c *Channel) IsOpen() bool {
	return c.open.Load()
}

// Send queues msg for the relay. It does nothing unless the channel is open,
// and drops the message when the write buffer is full.
func (c *Channel) Send(msg ws.SignalMessage) error {
	if !c.IsOpen() {
		log.Warn().
			Str("component", "signaling").
			Str("type", string(msg.Type)).
			Msg("send on closed signaling channel ignored")
		return ErrChannelNotOpen
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrChannelNotOpen
	default:
		log.Warn().
			Str("component", "signaling").
			Str("type", string(msg.Type)).
			Msg("signaling send buffer full, dropping message")
		return ws.ErrMessageBufferFull
	}
}

// OnMessage registers a handler for inbound frames. Handlers run on the read
// goroutine in delivery order. Frames that arrived before the first handler
// was registered are delivered to it first.
func (c *Channel) OnMessage(handler func(ws.SignalMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, handler)
	early := c.early
	c.early = nil
	for _, msg := range early {
		handler(msg)
	}
}

// OnClose registers fn to run once when the channel closes.
func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Close shuts the channel down. Later calls are no-ops.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)

		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.conn.Close()

		c.mu.RLock()
		callbacks := append([]func(){}, c.onClose...)
		c.mu.RUnlock()
		for _, fn := range callbacks {
			fn()
		}

		log.Info().
			Str("component", "signaling").
			Str("sessionId", c.SessionID).
			Msg("signaling channel closed")
	})
	return nil
}

func (c *Channel) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.IsOpen() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("component", "signaling").Msg("signaling transport error")
			}
			return
		}

		var msg ws.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			log.Warn().
				Str("component", "signaling").
				Int("bytes", len(data)).
				Msg("skipping malformed signaling frame")
			continue
		}

		c.mu.Lock()
		if len(c.handlers) == 0 {
			c.early = append(c.early, msg)
			c.mu.Unlock()
			continue
		}
		handlers := c.handlers
		c.mu.Unlock()

		for _, h := range handlers {
			h(msg)
		}
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("component", "signaling").Msg("signaling write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
