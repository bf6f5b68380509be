package client

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/peer"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPC struct {
	mu     sync.Mutex
	closed int
}

func (p *stubPC) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (p *stubPC) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (p *stubPC) SetLocalDescription(webrtc.SessionDescription) error      { return nil }
func (p *stubPC) SetRemoteDescription(webrtc.SessionDescription) error     { return nil }
func (p *stubPC) AddICECandidate(webrtc.ICECandidateInit) error            { return nil }
func (p *stubPC) AddTrack(webrtc.TrackLocal) error                         { return nil }
func (p *stubPC) OnICECandidate(func(webrtc.ICECandidateInit))             {}
func (p *stubPC) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}
func (p *stubPC) OnTrack(func(*webrtc.TrackRemote))                        {}

func (p *stubPC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *stubPC) closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type stubMedia struct {
	mu      sync.Mutex
	stopped int
}

func (m *stubMedia) Tracks() []webrtc.TrackLocal { return nil }
func (m *stubMedia) SetAudioEnabled(bool)        {}
func (m *stubMedia) SetVideoEnabled(bool)        {}

func (m *stubMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

func (m *stubMedia) stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type endpoint struct {
	client *Client
	calls  *Calls
	pc     *stubPC
	media  *stubMedia
	ended  *recorder[core.CallNotice]
}

// newEndpoint runs a client whose calls auto-answer when accept is set.
func newEndpoint(t *testing.T, url string, uid domain.UserID, accept bool) *endpoint {
	t.Helper()
	ep := &endpoint{pc: &stubPC{}, media: &stubMedia{}}
	ep.client = startClient(t, url, uid, func(c *Client) {
		ep.ended = record[core.CallNotice](c, core.EvCallEnded)
		ep.calls = NewCalls(c, CallOptions{
			NewPeerConnection: func() (peer.PeerConnection, error) { return ep.pc, nil },
			AcquireMedia:      func(domain.CallType) (peer.LocalMedia, error) { return ep.media, nil },
			OnIncoming: func(n core.CallNotice) {
				if accept {
					_, err := ep.calls.Accept(n.CallID)
					assert.NoError(t, err)
				} else {
					assert.NoError(t, ep.calls.Reject(n.CallID, "declined"))
				}
			},
		})
	})
	return ep
}

func TestMidCallDisconnectTearsDownPeer(t *testing.T) {
	url := startServer(t)
	a := newEndpoint(t, url, "A", false)
	b := newEndpoint(t, url, "B", true)

	na, err := a.calls.Dial("B", domain.CallVideo)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return na.State() == peer.StateStable }, waitFor, 5*time.Millisecond)

	nb := b.calls.Active(na.RoomKey())
	require.NotNil(t, nb)
	assert.Equal(t, peer.StateStable, nb.State())

	a.client.Close()

	require.Eventually(t, func() bool { return b.ended.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, core.ReasonPeerDisconnected, b.ended.all()[0].Reason)
	require.Eventually(t, func() bool { return b.pc.closes() == 1 && b.media.stops() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, peer.StateClosed, nb.State())
	assert.Nil(t, b.calls.Active(na.RoomKey()))

	// The caller released its side when its own transport closed.
	assert.Equal(t, 1, a.pc.closes())
	assert.Equal(t, peer.StateClosed, na.State())
}

func TestRejectedCallClosesCaller(t *testing.T) {
	url := startServer(t)
	a := newEndpoint(t, url, "A", false)
	b := newEndpoint(t, url, "B", false)
	rejected := record[core.CallNotice](a.client, core.EvCallRejected)

	na, err := a.calls.Dial("B", domain.CallAudio)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rejected.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "declined", rejected.all()[0].Reason)
	require.Eventually(t, func() bool { return na.State() == peer.StateClosed }, waitFor, 5*time.Millisecond)
	assert.Zero(t, a.pc.closes(), "no connection was opened")
	assert.Nil(t, a.calls.Active(na.RoomKey()))
	assert.Zero(t, b.media.stops())
}

func TestHangupNotifiesPeer(t *testing.T) {
	url := startServer(t)
	a := newEndpoint(t, url, "A", false)
	b := newEndpoint(t, url, "B", true)

	na, err := a.calls.Dial("B", domain.CallAudio)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return na.State() == peer.StateStable }, waitFor, 5*time.Millisecond)

	require.NoError(t, a.calls.Hangup(na.RoomKey()))
	assert.ErrorIs(t, a.calls.Hangup(na.RoomKey()), ErrNoCall)

	require.Eventually(t, func() bool { return b.ended.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, core.ReasonHangup, b.ended.all()[0].Reason)
	require.Eventually(t, func() bool { return b.media.stops() == 1 }, waitFor, 5*time.Millisecond)
	assert.Zero(t, a.ended.len(), "the caller is not told about its own hangup")
}

func TestCloseHangsUpLiveCalls(t *testing.T) {
	url := startServer(t)
	a := newEndpoint(t, url, "A", false)
	b := newEndpoint(t, url, "B", true)

	na, err := a.calls.Dial("B", domain.CallAudio)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return na.State() == peer.StateStable }, waitFor, 5*time.Millisecond)
	nb := b.calls.Active(na.RoomKey())
	require.NotNil(t, nb)

	a.calls.Close()
	assert.Equal(t, peer.StateClosed, na.State())
	assert.Empty(t, a.calls.Keys())

	require.Eventually(t, func() bool { return b.ended.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, core.ReasonHangup, b.ended.all()[0].Reason)
	require.Eventually(t, func() bool { return b.media.stops() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, peer.StateClosed, nb.State())
	assert.Nil(t, b.calls.Active(na.RoomKey()))
	assert.Equal(t, StateConnected, a.client.State(), "closing calls keeps the client")
}
