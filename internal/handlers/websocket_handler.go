package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/httputil"
	"github.com/astroveda/consult/internal/middlewares"
	ws "github.com/astroveda/consult/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler builds the signaling relay endpoint. An empty origin
// list accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin] || origins["*"]
			},
		},
	}
}

// HandleWebSocket is the WebSocket endpoint handler
// MUST be protected by WebSocketAuthMiddleware
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	auth, err := middlewares.GetWebSocketAuth(c)
	if err != nil {
		log.Error().Err(err).Msg("websocket handler: missing auth context")
		httputil.WriteError(c, apperrors.Internal("internal server error"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", auth.SessionID).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(auth.SessionID, c.Param("user_id"), conn)
	h.hub.Join(client)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump relays every frame from the client to the rest of its session.
func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		if h.hub.Leave(client) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := h.hub.NotifyDisconnected(ctx, client.SessionID, client.ParticipantID); err != nil {
				log.Error().Err(err).Str("sessionId", client.SessionID).Msg("failed to announce disconnect")
			}
			cancel()
		}
		client.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("sessionId", client.SessionID).Msg("websocket closed unexpectedly")
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		msgType, err := h.hub.Relay(ctx, client.SessionID, client.ParticipantID, data)
		cancel()

		switch {
		case err != nil:
			log.Warn().
				Err(err).
				Str("sessionId", client.SessionID).
				Str("participantId", client.ParticipantID).
				Msg("dropping frame")
		case msgType == ws.TypePing:
			if err := client.Deliver([]byte(`{"type":"pong"}`)); err != nil {
				log.Debug().Err(err).Str("participantId", client.ParticipantID).Msg("pong not delivered")
			}
		}
	}
}

// writePump writes messages to the WebSocket
func (h *WebSocketHandler) writePump(client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("sessionId", client.SessionID).Msg("write failed")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done:
			return
		}
	}
}
