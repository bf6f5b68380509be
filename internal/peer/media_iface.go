package peer

import (
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the slice of a WebRTC peer connection the negotiator drives.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	// SetRemoteDescription must succeed before candidates can be applied.
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(*webrtc.TrackRemote))
	Close() error
}

// LocalMedia owns the local capture tracks of one call.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	// Stop ends every track. Safe to call more than once.
	Stop()
}
