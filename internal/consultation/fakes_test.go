package consultation

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/mock"

	"github.com/astroveda/consult/internal/dtos"
	ws "github.com/astroveda/consult/internal/websocket"
)

var errNoRemoteDescription = errors.New("remote description not set")

// fakePeerConnection records negotiation calls and mimics the ordering
// rules of a real peer connection.
type fakePeerConnection struct {
	mu         sync.Mutex
	name       string
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	rollbacks  int
	closed     int
	failRemote error

	onICE   func(*webrtc.ICECandidate)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
}

func newFakePC(name string) *fakePeerConnection {
	return &fakePeerConnection{name: name}
}

func (f *fakePeerConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, track)
	return nil, nil
}

func (f *fakePeerConnection) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-from-" + f.name}, nil
}

func (f *fakePeerConnection) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return webrtc.SessionDescription{}, errNoRemoteDescription
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-from-" + f.name}, nil
}

func (f *fakePeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if desc.Type == webrtc.SDPTypeRollback {
		f.local = nil
		f.rollbacks++
		return nil
	}
	f.local = &desc
	return nil
}

func (f *fakePeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemote != nil {
		return f.failRemote
	}
	f.remote = &desc
	return nil
}

func (f *fakePeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return errNoRemoteDescription
	}
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakePeerConnection) OnICECandidate(fn func(*webrtc.ICECandidate)) { f.onICE = fn }

func (f *fakePeerConnection) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	f.onTrack = fn
}

func (f *fakePeerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.onState = fn
}

// Close reports the closed state synchronously, as pion does.
func (f *fakePeerConnection) Close() error {
	f.mu.Lock()
	f.closed++
	onState := f.onState
	f.mu.Unlock()

	if onState != nil {
		onState(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

func (f *fakePeerConnection) Local() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

func (f *fakePeerConnection) Remote() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakePeerConnection) Candidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.candidates...)
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []ws.SignalMessage
	err  error
}

func (s *fakeSignaler) Send(msg ws.SignalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSignaler) Sent() []ws.SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ws.SignalMessage(nil), s.sent...)
}

func (s *fakeSignaler) OfType(t ws.MessageType) []ws.SignalMessage {
	var out []ws.SignalMessage
	for _, m := range s.Sent() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeDevices struct {
	noVideo bool
	err     error
}

func (d fakeDevices) Acquire(ctx context.Context) ([]*MediaTrack, error) {
	if d.err != nil {
		return nil, d.err
	}
	return HeadlessDevices{StreamID: "test", NoVideo: d.noVideo}.Acquire(ctx)
}

type mockBackend struct{ mock.Mock }

func (m *mockBackend) GetSession(ctx context.Context, sessionID string) (*dtos.SessionResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dtos.SessionResponse), args.Error(1)
}

func (m *mockBackend) StartSession(ctx context.Context, req dtos.StartSessionRequest) (*dtos.SessionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dtos.SessionResponse), args.Error(1)
}

func (m *mockBackend) EndSession(ctx context.Context, sessionID string) (*dtos.SessionResponse, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dtos.SessionResponse), args.Error(1)
}

func (m *mockBackend) GetAstrologer(ctx context.Context, astrologerID string) (*dtos.AstrologerProfile, error) {
	args := m.Called(ctx, astrologerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dtos.AstrologerProfile), args.Error(1)
}

func (m *mockBackend) WalletBalance(ctx context.Context) (*dtos.WalletBalanceResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dtos.WalletBalanceResponse), args.Error(1)
}

type countingCloser struct {
	mu    sync.Mutex
	count int
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func (c *countingCloser) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
