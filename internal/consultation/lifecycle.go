package consultation

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/dtos"
	"github.com/astroveda/consult/internal/models"
)

const (
	RouteAstrologerDashboard = "/astro-dashboard"
	RouteUserDashboard       = "/dashboard"
	RouteFallback            = "/"

	// NavigateDelay is how long the "Call ended." line stays on screen.
	NavigateDelay = 2 * time.Second
)

// Placeholder partner names.
const (
	PartnerUnknown    = "Participant"
	PartnerAstrologer = "Astrologer"
	PartnerClient     = "Client"
)

// Backend is the REST surface the lifecycle depends on.
type Backend interface {
	GetSession(ctx context.Context, sessionID string) (*dtos.SessionResponse, error)
	StartSession(ctx context.Context, req dtos.StartSessionRequest) (*dtos.SessionResponse, error)
	EndSession(ctx context.Context, sessionID string) (*dtos.SessionResponse, error)
	GetAstrologer(ctx context.Context, astrologerID string) (*dtos.AstrologerProfile, error)
	WalletBalance(ctx context.Context) (*dtos.WalletBalanceResponse, error)
}

// Target selects between starting a consultation with an astrologer and
// joining an existing session. ExistingSessionID wins when both are set.
type Target struct {
	NewSessionTarget  models.ID
	ExistingSessionID models.ID
}

type Partner struct {
	ParticipantID models.ID
	Name          string
	Role          models.Role
}

// Resolution is the outcome of Initialize.
type Resolution struct {
	Session       *dtos.SessionResponse
	Partner       Partner
	RatePerMinute float64
	Balance       float64
	BalanceKnown  bool
	CallActive    bool
}

// ResolvePartner picks the counterpart of me in session. It never fails: an
// unmatched participant gets a placeholder.
func ResolvePartner(me models.ID, session *dtos.SessionResponse) Partner {
	if session == nil {
		return Partner{Name: PartnerUnknown}
	}

	if me.Equal(session.UserID) {
		p := Partner{Name: PartnerAstrologer, Role: models.RoleAstrologer}
		if a := session.Astrologer; a != nil {
			p.ParticipantID = a.UserID
			if a.Name != "" {
				p.Name = a.Name
			}
		}
		return p
	}

	if session.Astrologer != nil && me.Equal(session.Astrologer.UserID) {
		p := Partner{ParticipantID: session.UserID, Name: PartnerClient, Role: models.RoleUser}
		if u := session.User; u != nil && u.Name != "" {
			p.Name = u.Name
		}
		return p
	}

	return Partner{Name: PartnerUnknown}
}

// Lifecycle resolves the session a room is bound to and drives the start
// and end calls against the backend.
type Lifecycle struct {
	identity Identity
	backend  Backend
	chat     *ChatLog
	navigate func(route string)
	after    func(d time.Duration, f func())

	mu         sync.Mutex
	resolution *Resolution
	channel    io.Closer
	ending     bool
}

func NewLifecycle(identity Identity, backend Backend, chat *ChatLog, navigate func(route string)) *Lifecycle {
	if navigate == nil {
		navigate = func(string) {}
	}
	return &Lifecycle{
		identity: identity,
		backend:  backend,
		chat:     chat,
		navigate: navigate,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Initialize resolves the session. Failures are reported as a system line;
// the returned error lets callers tell them apart.
func (l *Lifecycle) Initialize(ctx context.Context, target Target) (*Resolution, error) {
	var (
		res *Resolution
		err error
	)
	if target.ExistingSessionID.String() != "" {
		res, err = l.join(ctx, target.ExistingSessionID)
	} else {
		res, err = l.start(ctx, target.NewSessionTarget)
	}

	if err != nil {
		if isInsufficientBalance(err) {
			l.chat.AppendSystem(MsgInsufficientBalance)
			return nil, ErrInsufficientBalance
		}
		log.Error().Err(err).Str("component", "lifecycle").Msg("session initialization failed")
		l.chat.AppendSystem(MsgConnectFailed)
		return nil, err
	}

	l.mu.Lock()
	l.resolution = res
	l.mu.Unlock()

	if res.CallActive {
		l.chat.AppendSystem(fmt.Sprintf(MsgConnectedWith, res.Partner.Name))
	} else {
		l.chat.AppendSystem(MsgSessionEnded)
	}

	log.Info().
		Str("component", "lifecycle").
		Str("sessionId", res.Session.ID.String()).
		Str("partner", res.Partner.Name).
		Bool("callActive", res.CallActive).
		Bool("freeTrial", res.Session.IsFreeTrial).
		Msg("session resolved")

	return res, nil
}

func (l *Lifecycle) join(ctx context.Context, sessionID models.ID) (*Resolution, error) {
	session, err := l.backend.GetSession(ctx, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", sessionID, err)
	}

	res := &Resolution{
		Session:    session,
		Partner:    ResolvePartner(l.identity.ParticipantID, session),
		CallActive: session.IsActive(),
	}
	if session.Astrologer != nil {
		res.RatePerMinute = session.Astrologer.Rate
	}

	if !l.identity.IsAstrologer() {
		l.refreshBalance(ctx, res)
	}
	return res, nil
}

func (l *Lifecycle) start(ctx context.Context, astrologerID models.ID) (*Resolution, error) {
	if astrologerID.String() == "" {
		return nil, fmt.Errorf("no astrologer selected")
	}

	astrologer, err := l.backend.GetAstrologer(ctx, astrologerID.String())
	if err != nil {
		return nil, fmt.Errorf("fetch astrologer %s: %w", astrologerID, err)
	}

	wallet, err := l.backend.WalletBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch wallet balance: %w", err)
	}

	session, err := l.backend.StartSession(ctx, dtos.StartSessionRequest{
		AstrologerID: astrologerID,
		Type:         string(models.SessionTypeCall),
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if session.Astrologer == nil {
		session.Astrologer = astrologer
	}

	partner := Partner{ParticipantID: astrologer.UserID, Name: astrologer.Name, Role: models.RoleAstrologer}
	if partner.Name == "" {
		partner.Name = PartnerAstrologer
	}

	return &Resolution{
		Session:       session,
		Partner:       partner,
		RatePerMinute: astrologer.Rate,
		Balance:       wallet.Balance,
		BalanceKnown:  true,
		CallActive:    session.IsActive(),
	}, nil
}

func (l *Lifecycle) refreshBalance(ctx context.Context, res *Resolution) {
	wallet, err := l.backend.WalletBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "lifecycle").Msg("wallet balance unavailable")
		return
	}
	l.mu.Lock()
	res.Balance = wallet.Balance
	res.BalanceKnown = true
	l.mu.Unlock()
}

// BindChannel records the signaling channel the room opened for the
// resolved session. A previously bound channel is closed first.
func (l *Lifecycle) BindChannel(ch io.Closer) {
	l.mu.Lock()
	prev := l.channel
	l.channel = ch
	l.mu.Unlock()

	if prev != nil && prev != ch {
		prev.Close()
	}
}

// Resolution returns the current session resolution, or nil.
func (l *Lifecycle) Resolution() *Resolution {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolution
}

func (l *Lifecycle) CallActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolution != nil && l.resolution.CallActive
}

// EndCall marks the call inactive, closes the channel and ends the session
// on the backend, then leaves for the landing route after NavigateDelay. If
// the backend call fails it leaves for RouteFallback at once.
func (l *Lifecycle) EndCall(ctx context.Context) (*dtos.SessionResponse, error) {
	l.mu.Lock()
	if l.ending {
		l.mu.Unlock()
		return nil, nil
	}
	l.ending = true
	res := l.resolution
	if res != nil {
		res.CallActive = false
	}
	ch := l.channel
	l.channel = nil
	l.mu.Unlock()

	if ch != nil {
		ch.Close()
	}

	if res == nil {
		l.navigate(RouteFallback)
		return nil, ErrNoSession
	}

	ended, err := l.backend.EndSession(ctx, res.Session.ID.String())
	if err != nil {
		log.Error().Err(err).Str("component", "lifecycle").Str("sessionId", res.Session.ID.String()).Msg("failed to end session")
		l.navigate(RouteFallback)
		return nil, err
	}

	l.mu.Lock()
	res.Session = ended
	l.mu.Unlock()

	if !l.identity.IsAstrologer() {
		l.refreshBalance(ctx, res)
	}

	l.chat.AppendSystem(MsgCallEnded)

	log.Info().
		Str("component", "lifecycle").
		Str("sessionId", ended.ID.String()).
		Int64("duration", ended.Duration).
		Float64("cost", ended.Cost).
		Msg("call ended")

	route := l.identity.LandingRoute()
	l.after(NavigateDelay, func() { l.navigate(route) })
	return ended, nil
}
