package consultation

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaTrack is a local track whose samples can be switched off without
// renegotiating the connection.
type MediaTrack struct {
	*webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool
}

// NewMediaTrack creates an enabled Opus audio or VP8 video track.
func NewMediaTrack(kind webrtc.RTPCodecType, streamID string) (*MediaTrack, error) {
	var capability webrtc.RTPCodecCapability
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case webrtc.RTPCodecTypeVideo:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	default:
		return nil, fmt.Errorf("unsupported track kind %s", kind)
	}

	sample, err := webrtc.NewTrackLocalStaticSample(capability, kind.String(), streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &MediaTrack{TrackLocalStaticSample: sample}
	t.enabled.Store(true)
	return t, nil
}

func (t *MediaTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *MediaTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Stop permanently silences the track.
func (t *MediaTrack) Stop() {
	t.stopped.Store(true)
	t.enabled.Store(false)
}

func (t *MediaTrack) Stopped() bool {
	return t.stopped.Load()
}

// WriteSample forwards s unless the track is disabled or stopped.
func (t *MediaTrack) WriteSample(s media.Sample) error {
	if t.stopped.Load() || !t.enabled.Load() {
		return nil
	}
	return t.TrackLocalStaticSample.WriteSample(s)
}

// MediaDevices supplies the local camera and microphone tracks.
type MediaDevices interface {
	Acquire(ctx context.Context) ([]*MediaTrack, error)
}

// HeadlessDevices produces unfed audio and video tracks so a participant
// without capture hardware still negotiates both media sections.
type HeadlessDevices struct {
	StreamID string
	NoVideo  bool
}

func (d HeadlessDevices) Acquire(context.Context) ([]*MediaTrack, error) {
	streamID := d.StreamID
	if streamID == "" {
		streamID = "consult"
	}

	audio, err := NewMediaTrack(webrtc.RTPCodecTypeAudio, streamID)
	if err != nil {
		return nil, err
	}
	if d.NoVideo {
		return []*MediaTrack{audio}, nil
	}

	video, err := NewMediaTrack(webrtc.RTPCodecTypeVideo, streamID)
	if err != nil {
		return nil, err
	}
	return []*MediaTrack{audio, video}, nil
}
