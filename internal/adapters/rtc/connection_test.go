package rtc

import (
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWebRTCConfig(t *testing.T) {
	cfg := DefaultWebRTCConfig([]string{"stun:a:3478", "turn:b:3478"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:a:3478", "turn:b:3478"}, cfg.ICEServers[0].URLs)
	assert.Empty(t, DefaultWebRTCConfig(nil).ICEServers)
}

func TestOfferAnswerBetweenLocalConnections(t *testing.T) {
	caller, err := NewWebRTCConnection(webrtc.Configuration{}, "caller")
	require.NoError(t, err)
	defer caller.Close()
	callee, err := NewWebRTCConnection(webrtc.Configuration{}, "callee")
	require.NoError(t, err)
	defer callee.Close()

	media, err := NewLocalMedia(domain.CallVideo)
	require.NoError(t, err)
	for _, tr := range media.Tracks() {
		require.NoError(t, caller.AddTrack(tr))
	}

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, caller.SetLocalDescription(offer))
	require.NoError(t, callee.SetRemoteDescription(offer))

	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, callee.SetLocalDescription(answer))
	require.NoError(t, caller.SetRemoteDescription(answer))

	assert.Equal(t, webrtc.SignalingStateStable, caller.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, callee.SignalingState())
	assert.Contains(t, offer.SDP, "opus")
	assert.Contains(t, offer.SDP, "VP8")
}

func TestLocalMediaMuteAndStop(t *testing.T) {
	media, err := NewLocalMedia(domain.CallAudio)
	require.NoError(t, err)
	assert.Len(t, media.Tracks(), 1)

	audio, video := media.Enabled()
	assert.True(t, audio)
	assert.False(t, video)

	// unbound tracks accept writes without a peer
	require.NoError(t, media.WriteAudio(OpusSilence, 20*time.Millisecond))
	assert.ErrorIs(t, media.WriteVideo([]byte{0}, 33*time.Millisecond, true), ErrTrackMuted)

	media.SetAudioEnabled(false)
	assert.ErrorIs(t, media.WriteAudio(OpusSilence, 20*time.Millisecond), ErrTrackMuted)
	media.SetAudioEnabled(true)
	media.Stop()
	assert.ErrorIs(t, media.WriteAudio(OpusSilence, 20*time.Millisecond), ErrTrackMuted)
}
