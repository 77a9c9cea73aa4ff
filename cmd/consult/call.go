package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/astroveda/consult/internal/apiclient"
	"github.com/astroveda/consult/internal/billing"
	"github.com/astroveda/consult/internal/consultation"
	"github.com/astroveda/consult/internal/dtos"
	"github.com/astroveda/consult/internal/models"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <astrologer-id>",
		Short: "Start a consultation with an astrologer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd, opts, consultation.Target{NewSessionTarget: models.ID(args[0])})
		},
	}
}

func newJoinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join an existing consultation session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd, opts, consultation.Target{ExistingSessionID: models.ID(args[0])})
		},
	}
}

func runRoom(cmd *cobra.Command, opts *rootOptions, target consultation.Target) error {
	profile, err := LoadProfile(opts.profilePath)
	if err != nil {
		return err
	}

	api, err := apiclient.New(profile.APIURL, profile.Token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	left := make(chan string, 1)
	var leaveOnce sync.Once
	announcer := newCallAnnouncer(out)

	room, err := consultation.Mount(ctx, consultation.RoomConfig{
		Identity:      profile.Identity(),
		Backend:       api,
		SignalBaseURL: profile.SignalURL,
		ICEServers:    profile.ICEServers,
		Devices:       consultation.HeadlessDevices{StreamID: "consult-" + profile.ParticipantID, NoVideo: profile.NoVideo},
		Navigate: func(route string) {
			leaveOnce.Do(func() { left <- route })
		},
		OnChat: func(m consultation.ChatMessage) {
			fmt.Fprintln(out, formatChat(m))
		},
		OnCallState: announcer.observe,
	}, target)
	if err != nil {
		return err
	}
	defer room.Unmount()

	return runLoop(ctx, roomControls{room: room}, cmd.InOrStdin(), out, left)
}

// runLoop reads commands until input ends, the user quits, or the room
// navigates away.
func runLoop(ctx context.Context, ctl callControls, in io.Reader, out io.Writer, left <-chan string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case route := <-left:
			fmt.Fprintf(out, "Leaving for %s.\n", route)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, ctl, line, out); quit {
				return nil
			}
		}
	}
}

// callControls is what the command loop drives.
type callControls interface {
	SendChat(text string) error
	StartCall() error
	AcceptIncoming() error
	RejectIncoming() error
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	EndCall(ctx context.Context) (*dtos.SessionResponse, error)
	Status() string
}

const helpText = `Commands:
  /call     start the call
  /accept   answer an incoming call
  /reject   decline an incoming call
  /mute     toggle the microphone
  /video    toggle the camera
  /status   show call and billing status
  /end      end the consultation
  /quit     leave without ending
Anything else is sent as a chat message.`

// handleLine runs one line of input and reports whether the loop should stop.
func handleLine(ctx context.Context, ctl callControls, line string, out io.Writer) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := ctl.SendChat(line); err != nil {
			fmt.Fprintf(out, "Message not sent: %v\n", err)
		}
		return false
	}

	var err error
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/call":
		err = ctl.StartCall()
	case "/accept":
		err = ctl.AcceptIncoming()
	case "/reject":
		if err = ctl.RejectIncoming(); err == nil {
			fmt.Fprintln(out, "Call declined.")
		}
	case "/mute":
		var muted bool
		if muted, err = ctl.ToggleMute(); err == nil {
			fmt.Fprintln(out, onOff("Microphone", !muted))
		}
	case "/video":
		var off bool
		if off, err = ctl.ToggleVideo(); err == nil {
			fmt.Fprintln(out, onOff("Camera", !off))
		}
	case "/status":
		fmt.Fprintln(out, ctl.Status())
	case "/end":
		var ended *dtos.SessionResponse
		if ended, err = ctl.EndCall(ctx); err == nil && ended != nil {
			fmt.Fprintf(out, "Session %s: %s, cost %.2f.\n", ended.ID, billing.FormatDuration(ended.Duration), ended.Cost)
		}
	case "/quit":
		return true
	case "/help":
		fmt.Fprintln(out, helpText)
	default:
		fmt.Fprintf(out, "Unknown command %s. Type /help.\n", line)
	}

	if err != nil {
		log.Debug().Err(err).Str("command", line).Msg("command failed")
		fmt.Fprintf(out, "%s failed: %v\n", line, err)
	}
	return false
}

// callAnnouncer prints call state transitions as they happen.
type callAnnouncer struct {
	mu   sync.Mutex
	out  io.Writer
	last consultation.CallState
}

func newCallAnnouncer(out io.Writer) *callAnnouncer {
	return &callAnnouncer{
		out:  out,
		last: consultation.CallState{ConnectionStatus: consultation.StatusNew},
	}
}

func (a *callAnnouncer) observe(s consultation.CallState, partner string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprint(a.out, describeTransition(a.last, s, partner))
	a.last = s
}

// describeTransition renders the lines worth printing for a state change.
func describeTransition(prev, next consultation.CallState, partner string) string {
	var b strings.Builder
	if next.IncomingCall && !prev.IncomingCall {
		fmt.Fprintf(&b, "Incoming call from %s. /accept or /reject\n", partner)
	}
	if next.ConnectionStatus != prev.ConnectionStatus {
		fmt.Fprintf(&b, "Call %s.\n", next.ConnectionStatus)
	}
	if next.RemoteStreamPresent && !prev.RemoteStreamPresent {
		fmt.Fprintf(&b, "Receiving media from %s.\n", partner)
	}
	return b.String()
}

func onOff(what string, on bool) string {
	if on {
		return what + " on."
	}
	return what + " off."
}

func formatChat(m consultation.ChatMessage) string {
	if m.System {
		return fmt.Sprintf("[%s] * %s", m.TimestampDisplay, m.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", m.TimestampDisplay, m.SenderDisplayName, m.Text)
}

func partnerName(room *consultation.Room) string {
	if res := room.Lifecycle().Resolution(); res != nil {
		return res.Partner.Name
	}
	return consultation.PartnerUnknown
}

// roomControls adapts a mounted room to the command loop.
type roomControls struct {
	room *consultation.Room
}

func (c roomControls) SendChat(text string) error {
	return c.room.SendChat(text)
}

func (c roomControls) StartCall() error {
	return c.room.StartCall()
}

func (c roomControls) AcceptIncoming() error {
	return c.room.AcceptIncoming()
}

func (c roomControls) RejectIncoming() error {
	return c.room.RejectIncoming()
}

func (c roomControls) EndCall(ctx context.Context) (*dtos.SessionResponse, error) {
	return c.room.EndCall(ctx)
}

func (c roomControls) ToggleMute() (bool, error) {
	peer := c.room.Peer()
	if peer == nil {
		return false, consultation.ErrNoSession
	}
	return peer.ToggleMute(), nil
}

func (c roomControls) ToggleVideo() (bool, error) {
	peer := c.room.Peer()
	if peer == nil {
		return false, consultation.ErrNoSession
	}
	return peer.ToggleVideo(), nil
}

func (c roomControls) Status() string {
	var state consultation.CallState
	if peer := c.room.Peer(); peer != nil {
		state = peer.State()
	}
	return formatStatus(partnerName(c.room), c.room.Lifecycle().CallActive(), state, c.room.Billing(), c.room.Estimator() != nil && c.room.Estimator().IsFreeTrial())
}

func formatStatus(partner string, active bool, state consultation.CallState, snap billing.Snapshot, freeTrial bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Partner: %s\n", partner)
	if !active {
		b.WriteString("Session: ended\n")
	} else {
		b.WriteString("Session: active\n")
	}
	fmt.Fprintf(&b, "Call: %s", state.ConnectionStatus)
	if state.Muted {
		b.WriteString(", muted")
	}
	if state.VideoOff {
		b.WriteString(", camera off")
	}
	if state.IncomingCall {
		fmt.Fprintf(&b, ", incoming call from %s waiting (/accept or /reject)", partner)
	}
	fmt.Fprintf(&b, "\nDuration: %s\n", billing.FormatDuration(snap.ElapsedSeconds))
	if snap.InFreeWindow(freeTrial) {
		fmt.Fprintf(&b, "Free trial: %s remaining\n", billing.FormatDuration(billing.FreeTrialSeconds-snap.ElapsedSeconds))
	}
	fmt.Fprintf(&b, "Estimated balance: %.2f", snap.EstimatedBalance)
	return b.String()
}
