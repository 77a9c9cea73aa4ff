package consultation

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	ws "github.com/astroveda/consult/internal/websocket"
)

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// PeerConnection is the subset of *webrtc.PeerConnection a PeerSession drives.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// NewPeerConnection creates a pion peer connection using iceServers, or
// DefaultICEServers when none are given.
func NewPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

type ConnectionStatus string

const (
	StatusNew          ConnectionStatus = "new"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusFailed       ConnectionStatus = "failed"
	StatusClosed       ConnectionStatus = "closed"
)

func statusFromPeerState(s webrtc.PeerConnectionState) ConnectionStatus {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StatusConnecting
	case webrtc.PeerConnectionStateConnected:
		return StatusConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StatusDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StatusFailed
	case webrtc.PeerConnectionStateClosed:
		return StatusClosed
	default:
		return StatusNew
	}
}

// CallState is the observable state of a PeerSession.
type CallState struct {
	ConnectionStatus    ConnectionStatus
	Muted               bool
	VideoOff            bool
	RemoteStreamPresent bool
	IncomingCall        bool
	IncomingFrom        string
}

// PeerSession owns the single peer connection of a mounted room: its local
// tracks, the offer/answer exchange, and the call state derived from it.
type PeerSession struct {
	pc       PeerConnection
	signaler Signaler
	selfID   string

	// negMu serializes negotiation calls into the peer connection; mu guards
	// state and is never held while calling out.
	negMu sync.Mutex
	mu    sync.Mutex

	state         CallState
	tracks        []*MediaTrack
	mediaAcquired bool
	incoming      *webrtc.SessionDescription
	pending       []webrtc.ICECandidateInit
	remoteSet     bool
	offering      bool
	torndown      bool
	stateSubs     map[int]func(CallState)
	trackSubs     map[int]func(*webrtc.TrackRemote)
	nextSubID     int
	teardownOnce  sync.Once
}

// NewPeerSession binds pc to signaler on behalf of participant selfID.
func NewPeerSession(pc PeerConnection, signaler Signaler, selfID string) *PeerSession {
	p := &PeerSession{
		pc:        pc,
		signaler:  signaler,
		selfID:    selfID,
		state:     CallState{ConnectionStatus: StatusNew},
		stateSubs: make(map[int]func(CallState)),
		trackSubs: make(map[int]func(*webrtc.TrackRemote)),
	}

	pc.OnICECandidate(p.handleLocalCandidate)
	pc.OnTrack(p.handleRemoteTrack)
	pc.OnConnectionStateChange(p.handleConnectionState)

	return p
}

// AttachMedia acquires local tracks once and adds them to the connection.
// Acquisition failure is logged and the session continues without them.
func (p *PeerSession) AttachMedia(ctx context.Context, devices MediaDevices) {
	p.mu.Lock()
	if p.mediaAcquired || p.torndown {
		p.mu.Unlock()
		return
	}
	p.mediaAcquired = true
	p.mu.Unlock()

	if devices == nil {
		return
	}

	tracks, err := devices.Acquire(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "peer").Msg("local media unavailable, continuing without tracks")
		return
	}

	p.negMu.Lock()
	defer p.negMu.Unlock()

	added := make([]*MediaTrack, 0, len(tracks))
	for _, t := range tracks {
		if _, err := p.pc.AddTrack(t); err != nil {
			log.Warn().Err(err).Str("component", "peer").Str("kind", t.Kind().String()).Msg("failed to add local track")
			continue
		}
		added = append(added, t)
	}

	p.mu.Lock()
	p.tracks = append(p.tracks, added...)
	p.mu.Unlock()
}

// StartCall makes this side the offerer.
func (p *PeerSession) StartCall() error {
	p.negMu.Lock()
	defer p.negMu.Unlock()

	p.mu.Lock()
	switch {
	case p.torndown:
		p.mu.Unlock()
		return ErrTornDown
	case p.incoming != nil:
		p.mu.Unlock()
		return ErrIncomingCallPending
	}
	p.mu.Unlock()

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	p.mu.Lock()
	p.offering = true
	p.mu.Unlock()

	if err := p.signaler.Send(ws.NewOffer(offer)); err != nil {
		log.Warn().Err(err).Str("component", "peer").Msg("failed to send offer")
		return err
	}

	log.Info().Str("component", "peer").Msg("offer sent")
	return nil
}

// AcceptIncoming answers the held offer.
func (p *PeerSession) AcceptIncoming() error {
	p.negMu.Lock()
	defer p.negMu.Unlock()

	return p.acceptLocked()
}

func (p *PeerSession) acceptLocked() error {
	p.mu.Lock()
	if p.torndown {
		p.mu.Unlock()
		return ErrTornDown
	}
	offer := p.incoming
	if offer == nil {
		p.mu.Unlock()
		return ErrNoIncomingCall
	}
	p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(*offer); err != nil {
		log.Error().Err(err).Str("component", "peer").Msg("failed to apply incoming offer")
		return fmt.Errorf("set remote offer: %w", err)
	}
	p.remoteDescriptionApplied()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	p.updateState(func(s *CallState) {
		p.incoming = nil
		s.IncomingCall = false
		s.IncomingFrom = ""
		s.ConnectionStatus = StatusConnecting
	})

	if err := p.signaler.Send(ws.NewAnswer(answer)); err != nil {
		log.Warn().Err(err).Str("component", "peer").Msg("failed to send answer")
		return err
	}

	log.Info().Str("component", "peer").Msg("answer sent")
	return nil
}

// RejectIncoming discards the held offer. The caller is not notified.
func (p *PeerSession) RejectIncoming() error {
	p.negMu.Lock()
	defer p.negMu.Unlock()

	p.mu.Lock()
	if p.incoming == nil {
		p.mu.Unlock()
		return ErrNoIncomingCall
	}
	p.mu.Unlock()

	p.updateState(func(s *CallState) {
		p.incoming = nil
		p.pending = nil
		s.IncomingCall = false
		s.IncomingFrom = ""
	})
	return nil
}

// HandleSignal applies an inbound call-control message. Errors are logged,
// never returned.
func (p *PeerSession) HandleSignal(msg ws.SignalMessage) {
	p.negMu.Lock()
	defer p.negMu.Unlock()

	p.mu.Lock()
	torndown := p.torndown
	p.mu.Unlock()
	if torndown {
		return
	}

	switch msg.Type {
	case ws.TypeOffer:
		p.handleOffer(msg)
	case ws.TypeAnswer:
		p.handleAnswer(msg)
	case ws.TypeCandidate:
		p.handleCandidate(msg)
	default:
		log.Debug().Str("component", "peer").Str("type", string(msg.Type)).Msg("ignoring non call-control message")
	}
}

func (p *PeerSession) handleOffer(msg ws.SignalMessage) {
	if err := msg.Validate(); err != nil {
		log.Warn().Err(err).Str("component", "peer").Msg("dropping malformed offer")
		return
	}

	p.mu.Lock()
	offering := p.offering
	p.mu.Unlock()

	if offering {
		if keepsOwnOffer(p.selfID, msg.SenderID) {
			log.Info().
				Str("component", "peer").
				Str("remote", msg.SenderID).
				Msg("offer collision, keeping local offer")
			return
		}

		log.Info().
			Str("component", "peer").
			Str("remote", msg.SenderID).
			Msg("offer collision, rolling back local offer")
		if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			log.Error().Err(err).Str("component", "peer").Msg("rollback failed")
			return
		}
		p.mu.Lock()
		p.offering = false
		p.mu.Unlock()
	}

	offer := *msg.SDP
	p.updateState(func(s *CallState) {
		p.incoming = &offer
		s.IncomingCall = true
		s.IncomingFrom = msg.SenderID
	})

	// The local user already asked to call, so the colliding offer is
	// answered without waiting for them.
	if offering {
		if err := p.acceptLocked(); err != nil {
			log.Error().Err(err).Str("component", "peer").Msg("failed to accept colliding offer")
		}
	}
}

func (p *PeerSession) handleAnswer(msg ws.SignalMessage) {
	if err := msg.Validate(); err != nil {
		log.Warn().Err(err).Str("component", "peer").Msg("dropping malformed answer")
		return
	}

	p.mu.Lock()
	offering := p.offering
	p.mu.Unlock()
	if !offering {
		log.Warn().Str("component", "peer").Msg("answer without a pending offer ignored")
		return
	}

	if err := p.pc.SetRemoteDescription(*msg.SDP); err != nil {
		log.Error().Err(err).Str("component", "peer").Msg("failed to apply answer")
		return
	}

	p.mu.Lock()
	p.offering = false
	p.mu.Unlock()
	p.remoteDescriptionApplied()
}

func (p *PeerSession) handleCandidate(msg ws.SignalMessage) {
	if msg.Candidate == nil {
		log.Warn().Str("component", "peer").Msg("dropping empty candidate")
		return
	}

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, *msg.Candidate)
		n := len(p.pending)
		p.mu.Unlock()
		log.Debug().Str("component", "peer").Int("pending", n).Msg("candidate held until remote description")
		return
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(*msg.Candidate); err != nil {
		log.Warn().Err(err).Str("component", "peer").Msg("failed to add remote candidate")
	}
}

// remoteDescriptionApplied flushes candidates that arrived early. Callers
// hold negMu.
func (p *PeerSession) remoteDescriptionApplied() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("component", "peer").Msg("failed to add held candidate")
		}
	}
}

// keepsOwnOffer decides an offer collision: the greater participant id keeps
// its offer. Numeric ids compare numerically.
func keepsOwnOffer(selfID, remoteID string) bool {
	a, errA := strconv.ParseInt(selfID, 10, 64)
	b, errB := strconv.ParseInt(remoteID, 10, 64)
	if errA == nil && errB == nil {
		return a > b
	}
	return selfID > remoteID
}

// ToggleMute flips the enabled flag of local audio tracks and returns the new
// muted state.
func (p *PeerSession) ToggleMute() bool {
	var muted bool
	p.updateState(func(s *CallState) {
		s.Muted = !s.Muted
		muted = s.Muted
		for _, t := range p.tracks {
			if t.Kind() == webrtc.RTPCodecTypeAudio && !t.Stopped() {
				t.SetEnabled(!muted)
			}
		}
	})
	return muted
}

// ToggleVideo flips the enabled flag of local video tracks and returns the
// new video-off state.
func (p *PeerSession) ToggleVideo() bool {
	var off bool
	p.updateState(func(s *CallState) {
		s.VideoOff = !s.VideoOff
		off = s.VideoOff
		for _, t := range p.tracks {
			if t.Kind() == webrtc.RTPCodecTypeVideo && !t.Stopped() {
				t.SetEnabled(!off)
			}
		}
	})
	return off
}

// Teardown stops local tracks and closes the connection. Safe to call more
// than once.
func (p *PeerSession) Teardown() {
	p.teardownOnce.Do(func() {
		p.mu.Lock()
		p.torndown = true
		p.incoming = nil
		p.pending = nil
		tracks := p.tracks
		p.mu.Unlock()

		for _, t := range tracks {
			t.Stop()
		}

		if err := p.pc.Close(); err != nil {
			log.Warn().Err(err).Str("component", "peer").Msg("error closing peer connection")
		}

		log.Info().Str("component", "peer").Msg("peer session torn down")
	})
}

func (p *PeerSession) State() CallState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LocalTracks returns the tracks acquired at mount.
func (p *PeerSession) LocalTracks() []*MediaTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MediaTrack(nil), p.tracks...)
}

// OnStateChange subscribes fn to every state change and returns its
// unsubscribe func.
func (p *PeerSession) OnStateChange(fn func(CallState)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.stateSubs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.stateSubs, id)
		p.mu.Unlock()
	}
}

// OnRemoteTrack subscribes fn to remote tracks and returns its unsubscribe func.
func (p *PeerSession) OnRemoteTrack(fn func(*webrtc.TrackRemote)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.trackSubs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.trackSubs, id)
		p.mu.Unlock()
	}
}

// updateState applies mutate under mu and notifies subscribers afterwards.
func (p *PeerSession) updateState(mutate func(*CallState)) {
	p.mu.Lock()
	mutate(&p.state)
	state := p.state
	subs := make([]func(CallState), 0, len(p.stateSubs))
	for _, fn := range p.stateSubs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (p *PeerSession) handleLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}

	p.mu.Lock()
	torndown := p.torndown
	p.mu.Unlock()
	if torndown {
		return
	}

	if err := p.signaler.Send(ws.NewCandidate(c.ToJSON())); err != nil {
		log.Debug().Err(err).Str("component", "peer").Msg("local candidate not sent")
	}
}

func (p *PeerSession) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	p.updateState(func(s *CallState) {
		s.RemoteStreamPresent = true
	})

	p.mu.Lock()
	subs := make([]func(*webrtc.TrackRemote), 0, len(p.trackSubs))
	for _, fn := range p.trackSubs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(track)
	}
}

func (p *PeerSession) handleConnectionState(s webrtc.PeerConnectionState) {
	status := statusFromPeerState(s)
	log.Info().Str("component", "peer").Str("state", string(status)).Msg("connection state changed")

	p.updateState(func(cs *CallState) {
		cs.ConnectionStatus = status
	})
}
