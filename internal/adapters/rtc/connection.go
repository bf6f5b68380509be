package rtc

import (
	"github.com/dkeye/Parley/internal/peer"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultWebRTCConfig builds the ICE configuration from STUN/TURN urls.
func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: iceServers},
		},
	}
}

// WebRTCConnection adapts a pion PeerConnection to peer.PeerConnection.
type WebRTCConnection struct {
	pc    *webrtc.PeerConnection
	label string
}

var _ peer.PeerConnection = (*WebRTCConnection)(nil)

func NewWebRTCConnection(cfg webrtc.Configuration, label string) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, label: label}
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("call", label).Str("ice_state", s.String()).Msg("ICE state")
	})
	return c, nil
}

// Factory returns a constructor for the negotiator.
func Factory(cfg webrtc.Configuration, label string) func() (peer.PeerConnection, error) {
	return func() (peer.PeerConnection, error) {
		return NewWebRTCConnection(cfg, label)
	}
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(d)
}

func (c *WebRTCConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddTrack attaches a local track and drains its RTCP so interceptors keep running.
func (c *WebRTCConnection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (c *WebRTCConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("call", c.label).Str("peer_connection_state", s.String()).Msg("Peer state")
		fn(s)
	})
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(*webrtc.TrackRemote)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("call", c.label).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		fn(track)
	})
}

// SignalingState exposes the pion signaling state for inspection. Nothing in
// the call flow reads it; tests use it to check a completed negotiation.
func (c *WebRTCConnection) SignalingState() webrtc.SignalingState { return c.pc.SignalingState() }

func (c *WebRTCConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("call", c.label).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("call", c.label).Msg("closed")
	return nil
}
