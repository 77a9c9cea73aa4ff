package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroveda/consult/internal/consultation"
	"github.com/astroveda/consult/internal/dtos"
	"github.com/astroveda/consult/internal/handlers"
	"github.com/astroveda/consult/internal/middlewares"
	"github.com/astroveda/consult/internal/models"
	"github.com/astroveda/consult/internal/utils"
	ws "github.com/astroveda/consult/internal/websocket"
)

const relaySecret = "cli-test-secret-0123456789abcdef"

type anyParticipant struct{}

func (anyParticipant) IsParticipant(context.Context, int64, string) (bool, error) {
	return true, nil
}

type sessionBackend struct {
	session dtos.SessionResponse
}

func (b sessionBackend) GetSession(_ context.Context, id string) (*dtos.SessionResponse, error) {
	if b.session.ID.String() != id {
		return nil, errors.New("session not found")
	}
	s := b.session
	return &s, nil
}

func (b sessionBackend) StartSession(context.Context, dtos.StartSessionRequest) (*dtos.SessionResponse, error) {
	return nil, errors.New("not supported")
}

func (b sessionBackend) EndSession(context.Context, string) (*dtos.SessionResponse, error) {
	return nil, errors.New("not supported")
}

func (b sessionBackend) GetAstrologer(context.Context, string) (*dtos.AstrologerProfile, error) {
	return b.session.Astrologer, nil
}

func (b sessionBackend) WalletBalance(context.Context) (*dtos.WalletBalanceResponse, error) {
	return &dtos.WalletBalanceResponse{UserID: "7", Balance: 100}, nil
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub(nil)
	h := handlers.NewWebSocketHandler(hub, nil)

	r := gin.New()
	r.GET("/ws/:session_id/:user_id", middlewares.WebSocketAuthMiddleware(relaySecret, anyParticipant{}), h.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func mountParticipant(t *testing.T, srv *httptest.Server, backend sessionBackend, id consultation.Identity, onState func(consultation.CallState, string)) *consultation.Room {
	t.Helper()
	userID, err := id.ParticipantID.Int64()
	require.NoError(t, err)
	id.Token, err = utils.GenerateAccessToken(userID, string(id.Role), relaySecret, time.Hour)
	require.NoError(t, err)

	room, err := consultation.Mount(context.Background(), consultation.RoomConfig{
		Identity:      id,
		Backend:       backend,
		SignalBaseURL: srv.URL,
		ICEServers:    []string{"stun:127.0.0.1:3478"},
		Devices:       consultation.HeadlessDevices{StreamID: "test-" + id.ParticipantID.String(), NoVideo: true},
		Navigate:      func(string) {},
		OnCallState:   onState,
	}, consultation.Target{ExistingSessionID: backend.session.ID})
	require.NoError(t, err)
	t.Cleanup(room.Unmount)
	return room
}

func TestCallAnnouncer_OfferWaitingAtMount(t *testing.T) {
	srv := newRelay(t)
	backend := sessionBackend{session: dtos.SessionResponse{
		ID:           "42",
		UserID:       "7",
		AstrologerID: "3",
		StartTime:    time.Now(),
		Status:       string(models.SessionStatusActive),
		Type:         string(models.SessionTypeCall),
		User:         &dtos.UserPublic{ID: "7", Name: "Asha", Role: "user"},
		Astrologer:   &dtos.AstrologerProfile{ID: "3", UserID: "9", Name: "Pandit Rao", Rate: 30, IsOnline: true},
	}}

	seeker := mountParticipant(t, srv, backend,
		consultation.Identity{ParticipantID: "7", DisplayName: "Asha", Role: models.RoleUser}, nil)
	require.NoError(t, seeker.StartCall())

	out := &syncBuffer{}
	reader := mountParticipant(t, srv, backend,
		consultation.Identity{ParticipantID: "9", DisplayName: "Pandit Rao", Role: models.RoleAstrologer},
		newCallAnnouncer(out).observe)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Incoming call from Asha. /accept or /reject\n")
	}, 5*time.Second, 10*time.Millisecond)

	status := roomControls{room: reader}.Status()
	assert.Contains(t, status, "incoming call from Asha waiting (/accept or /reject)")
}

func TestCallAnnouncer_PrintsEachTransitionOnce(t *testing.T) {
	var out bytes.Buffer
	a := newCallAnnouncer(&out)

	incoming := consultation.CallState{ConnectionStatus: consultation.StatusNew, IncomingCall: true, IncomingFrom: "7"}
	a.observe(incoming, "Asha")
	a.observe(incoming, "Asha")
	a.observe(consultation.CallState{ConnectionStatus: consultation.StatusConnecting}, "Asha")

	assert.Equal(t, "Incoming call from Asha. /accept or /reject\nCall connecting.\n", out.String())
}
