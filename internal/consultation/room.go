package consultation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/billing"
	"github.com/astroveda/consult/internal/dtos"
	ws "github.com/astroveda/consult/internal/websocket"
)

// DialFunc opens a signaling channel. Open is the default.
type DialFunc func(ctx context.Context, baseURL, token, sessionID, participantID string) (*Channel, error)

type RoomConfig struct {
	Identity      Identity
	Backend       Backend
	SignalBaseURL string
	ICEServers    []string
	Devices       MediaDevices
	Navigate      func(route string)

	// OnChat, when set, sees every chat line from the first one on.
	OnChat func(ChatMessage)
	// OnCallState, when set, sees every call state change, including an
	// offer that was already waiting on the relay at mount.
	OnCallState func(state CallState, partner string)

	NewPeerConnection func() (PeerConnection, error)
	Dial              DialFunc
}

// Room is one mounted consultation view: it owns the chat history, the
// signaling channel, the peer session and the billing clock for a single
// resolved session.
type Room struct {
	cfg       RoomConfig
	chat      *ChatLog
	lifecycle *Lifecycle

	mu        sync.Mutex
	channel   *Channel
	peer      *PeerSession
	estimator *Estimator
	cancel    context.CancelFunc

	unmountOnce sync.Once
}

// Mount resolves target and, when a session is resolved, connects signaling
// and media. Initialization failures leave the room mounted with a system
// line in the chat; only an invalid configuration returns an error.
func Mount(ctx context.Context, cfg RoomConfig, target Target) (*Room, error) {
	if err := cfg.Identity.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("room: backend is required")
	}
	if cfg.Dial == nil {
		cfg.Dial = Open
	}
	if cfg.NewPeerConnection == nil {
		servers := cfg.ICEServers
		cfg.NewPeerConnection = func() (PeerConnection, error) {
			return NewPeerConnection(servers)
		}
	}

	chat := NewChatLog()
	if cfg.OnChat != nil {
		chat.OnAppend(cfg.OnChat)
	}
	roomCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &Room{
		cfg:       cfg,
		chat:      chat,
		lifecycle: NewLifecycle(cfg.Identity, cfg.Backend, chat, cfg.Navigate),
		cancel:    cancel,
	}

	chat.AppendSystem(MsgConnecting)

	res, err := r.lifecycle.Initialize(ctx, target)
	if err != nil {
		return r, nil
	}

	var elapsed int64
	if res.CallActive && !res.Session.StartTime.IsZero() {
		elapsed = int64(time.Since(res.Session.StartTime).Seconds())
	}
	r.estimator = NewEstimator(res.Session.IsFreeTrial, res.RatePerMinute, res.Balance, elapsed)

	r.connect(ctx, res.Session)

	if res.CallActive {
		r.estimator.Start(roomCtx)
	}
	return r, nil
}

// connect opens the channel for session and builds the peer session on it.
func (r *Room) connect(ctx context.Context, session *dtos.SessionResponse) {
	id := r.cfg.Identity

	var signaler Signaler = closedSignaler{}
	ch, err := r.cfg.Dial(ctx, r.cfg.SignalBaseURL, id.Token, session.ID.String(), id.ParticipantID.String())
	if err != nil {
		log.Error().Err(err).Str("component", "room").Msg("signaling connection failed")
	} else {
		signaler = ch
		r.lifecycle.BindChannel(ch)
		r.chat.AppendSystem(MsgSignalingConnected)
	}

	pc, err := r.cfg.NewPeerConnection()
	if err != nil {
		log.Error().Err(err).Str("component", "room").Msg("peer connection unavailable")
	} else {
		peer := NewPeerSession(pc, signaler, id.ParticipantID.String())
		if fn := r.cfg.OnCallState; fn != nil {
			peer.OnStateChange(func(s CallState) { fn(s, r.partnerName()) })
		}
		peer.AttachMedia(ctx, r.cfg.Devices)

		r.mu.Lock()
		r.peer = peer
		r.mu.Unlock()
	}

	if ch != nil {
		r.mu.Lock()
		r.channel = ch
		r.mu.Unlock()
		ch.OnMessage(r.dispatch)
	}
}

// dispatch routes an inbound frame by its type.
func (r *Room) dispatch(msg ws.SignalMessage) {
	if msg.Type.IsCallControl() {
		if peer := r.Peer(); peer != nil {
			peer.HandleSignal(msg)
		}
		return
	}

	switch msg.Type {
	case ws.TypeChat:
		sender := msg.SenderName
		if sender == "" {
			sender = r.partnerName()
		}
		r.chat.Append(msg.Content, sender)

	case ws.TypeUserDisconnected:
		r.chat.AppendSystem(MsgPartnerDisconnected)

	default:
		log.Debug().Str("component", "room").Str("type", string(msg.Type)).Msg("unhandled signaling message")
	}
}

func (r *Room) partnerName() string {
	if res := r.lifecycle.Resolution(); res != nil {
		return res.Partner.Name
	}
	return PartnerUnknown
}

// SendChat sends text to the partner and echoes it locally once sent.
func (r *Room) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()
	if ch == nil {
		return ErrChannelNotOpen
	}

	name := r.cfg.Identity.DisplayName
	if err := ch.Send(ws.NewChat(text, name)); err != nil {
		return err
	}
	r.chat.Append(text, name)
	return nil
}

func (r *Room) StartCall() error {
	peer := r.Peer()
	if peer == nil {
		return ErrNoSession
	}
	return peer.StartCall()
}

func (r *Room) AcceptIncoming() error {
	peer := r.Peer()
	if peer == nil {
		return ErrNoSession
	}
	return peer.AcceptIncoming()
}

func (r *Room) RejectIncoming() error {
	peer := r.Peer()
	if peer == nil {
		return ErrNoSession
	}
	return peer.RejectIncoming()
}

// EndCall stops the clock, tears down media and ends the session.
func (r *Room) EndCall(ctx context.Context) (*dtos.SessionResponse, error) {
	r.mu.Lock()
	peer, estimator := r.peer, r.estimator
	r.mu.Unlock()

	if estimator != nil {
		estimator.Stop()
	}
	if peer != nil {
		peer.Teardown()
	}

	ended, err := r.lifecycle.EndCall(ctx)
	if err != nil {
		return nil, err
	}

	if res := r.lifecycle.Resolution(); res != nil && res.BalanceKnown && estimator != nil {
		estimator.Rebase(res.Balance)
	}
	return ended, nil
}

// Unmount releases everything the room holds. Safe to call more than once.
func (r *Room) Unmount() {
	r.unmountOnce.Do(func() {
		r.mu.Lock()
		peer, estimator, ch := r.peer, r.estimator, r.channel
		r.mu.Unlock()

		r.cancel()
		if estimator != nil {
			estimator.Stop()
		}
		if peer != nil {
			peer.Teardown()
		}
		if ch != nil {
			ch.Close()
		}
	})
}

func (r *Room) Chat() *ChatLog {
	return r.chat
}

func (r *Room) Lifecycle() *Lifecycle {
	return r.lifecycle
}

// Peer returns the peer session, or nil when no session was resolved.
func (r *Room) Peer() *PeerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peer
}

// Estimator returns the billing clock, or nil when no session was resolved.
func (r *Room) Estimator() *Estimator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.estimator
}

// Billing returns the current estimate, or a zero snapshot.
func (r *Room) Billing() billing.Snapshot {
	if e := r.Estimator(); e != nil {
		return e.Snapshot()
	}
	return billing.Snapshot{}
}

// closedSignaler stands in when the relay could not be reached.
type closedSignaler struct{}

func (closedSignaler) Send(ws.SignalMessage) error {
	return ErrChannelNotOpen
}
