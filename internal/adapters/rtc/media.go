package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/peer"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	opusClockRate = 48000
	vp8ClockRate  = 90000
)

var ErrTrackMuted = errors.New("track muted or stopped")

// OpusSilence is one 20ms opus frame of silence.
var OpusSilence = []byte{0xf8, 0xff, 0xfe}

type outTrack struct {
	track     *webrtc.TrackLocalStaticRTP
	clockRate uint32
	enabled   bool
	seq       uint16
	ts        uint32
}

// LocalMedia holds the outgoing tracks of one call. Payloads written to it
// must already fit in a single RTP packet.
type LocalMedia struct {
	mu      sync.Mutex
	audio   *outTrack
	video   *outTrack
	stopped bool
}

var _ peer.LocalMedia = (*LocalMedia)(nil)

func NewLocalMedia(ct domain.CallType) (*LocalMedia, error) {
	stream := "parley-" + uuid.NewString()
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", stream,
	)
	if err != nil {
		return nil, err
	}
	m := &LocalMedia{audio: &outTrack{track: audio, clockRate: opusClockRate, enabled: true}}
	if ct == domain.CallVideo {
		video, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: vp8ClockRate},
			"video", stream,
		)
		if err != nil {
			return nil, err
		}
		m.video = &outTrack{track: video, clockRate: vp8ClockRate, enabled: true}
	}
	return m, nil
}

// Acquire matches the negotiator's media hook.
func Acquire(ct domain.CallType) (peer.LocalMedia, error) { return NewLocalMedia(ct) }

func (m *LocalMedia) Tracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []webrtc.TrackLocal{m.audio.track}
	if m.video != nil {
		out = append(out, m.video.track)
	}
	return out
}

func (m *LocalMedia) SetAudioEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio.enabled = on
}

func (m *LocalMedia) SetVideoEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.video != nil {
		m.video.enabled = on
	}
}

func (m *LocalMedia) Enabled() (audio, video bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio.enabled, m.video != nil && m.video.enabled
}

func (m *LocalMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *LocalMedia) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *LocalMedia) WriteAudio(payload []byte, d time.Duration) error {
	return m.write(func() *outTrack { return m.audio }, payload, d, false)
}

// WriteVideo sends one packet of an already packetized VP8 frame; last marks
// the final packet of the frame.
func (m *LocalMedia) WriteVideo(payload []byte, d time.Duration, last bool) error {
	return m.write(func() *outTrack { return m.video }, payload, d, last)
}

func (m *LocalMedia) write(pick func() *outTrack, payload []byte, d time.Duration, marker bool) error {
	m.mu.Lock()
	t := pick()
	if m.stopped || t == nil || !t.enabled {
		m.mu.Unlock()
		return ErrTrackMuted
	}
	t.seq++
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			SequenceNumber: t.seq,
			Timestamp:      t.ts,
		},
		Payload: payload,
	}
	t.ts += uint32(d.Seconds() * float64(t.clockRate))
	track := t.track
	m.mu.Unlock()
	return track.WriteRTP(pkt)
}
