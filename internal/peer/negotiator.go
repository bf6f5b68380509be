// Package peer drives one side of a two-party WebRTC call: offer/answer
// exchange, trickle ICE with an ordered pending queue, and teardown.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateIdle          State = "idle"
	StateOffering      State = "offering"
	StateAwaitingOffer State = "awaiting-offer"
	StateAnswering     State = "answering"
	StateStable        State = "stable"
	StateConnected     State = "connected"
	StateFailed        State = "failed"
	StateClosed        State = "closed"
)

func (s State) Terminal() bool { return s == StateFailed || s == StateClosed }

var (
	ErrAlreadyStarted   = errors.New("negotiation already started")
	ErrUnexpectedSignal = errors.New("unexpected signal")
)

// Signaler carries negotiation messages to the remote peer.
type Signaler interface {
	SendSignal(key domain.RoomKey, s core.Signal) error
	EndCall(id domain.CallID, key domain.RoomKey, reason string) error
}

type Config struct {
	CallID    domain.CallID
	RoomKey   domain.RoomKey
	Type      domain.CallType
	Initiator bool

	NewPeerConnection func() (PeerConnection, error)
	AcquireMedia      func(domain.CallType) (LocalMedia, error)
	Signaler          Signaler

	// OnState runs with the negotiator locked and must not call back into it.
	// err is set only for StateFailed.
	OnState       func(s State, err error)
	OnRemoteTrack func(*webrtc.TrackRemote)
}

// Negotiator is safe for concurrent use: signals, pion callbacks and UI
// controls may arrive from different goroutines.
type Negotiator struct {
	cfg Config

	mu        sync.Mutex
	state     State
	pc        PeerConnection
	media     LocalMedia
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	audioOn   bool
	videoOn   bool

	done atomic.Bool
}

func New(cfg Config) *Negotiator {
	return &Negotiator{
		cfg:     cfg,
		state:   StateIdle,
		audioOn: true,
		videoOn: cfg.Type == domain.CallVideo,
	}
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) RoomKey() domain.RoomKey { return n.cfg.RoomKey }
func (n *Negotiator) CallID() domain.CallID   { return n.cfg.CallID }

func (n *Negotiator) setState(s State, err error) {
	if n.state == s {
		return
	}
	log.Info().Str("module", "peer").Str("key", string(n.cfg.RoomKey)).
		Str("from", string(n.state)).Str("to", string(s)).Msg("negotiation state")
	n.state = s
	if n.cfg.OnState != nil {
		n.cfg.OnState(s, err)
	}
}

// Start acquires media and opens the peer connection. The initiator sends
// its offer right away; the callee waits for one.
func (n *Negotiator) Start() error {
	n.mu.Lock()
	if n.state != StateIdle {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	err := n.start()
	n.mu.Unlock()
	if err != nil {
		n.fail(err)
	}
	return err
}

func (n *Negotiator) start() error {
	media, err := n.cfg.AcquireMedia(n.cfg.Type)
	if err != nil {
		return fmt.Errorf("acquire media: %w", err)
	}
	n.media = media
	media.SetAudioEnabled(n.audioOn)
	media.SetVideoEnabled(n.videoOn)

	pc, err := n.cfg.NewPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	n.pc = pc
	pc.OnICECandidate(n.onLocalCandidate)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) { go n.onConnectionState(s) })
	pc.OnTrack(func(t *webrtc.TrackRemote) {
		if n.cfg.OnRemoteTrack != nil && !n.done.Load() {
			n.cfg.OnRemoteTrack(t)
		}
	})
	for _, t := range media.Tracks() {
		if err := pc.AddTrack(t); err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}

	if !n.cfg.Initiator {
		n.setState(StateAwaitingOffer, nil)
		return nil
	}
	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if err := n.send(core.SignalOffer, offer); err != nil {
		return err
	}
	n.setState(StateOffering, nil)
	return nil
}

// HandleSignal applies one relayed signal. Signals that do not fit the
// current state are ignored and reported as ErrUnexpectedSignal; any other
// error fails the call.
func (n *Negotiator) HandleSignal(s core.Signal) error {
	n.mu.Lock()
	err := n.apply(s)
	n.mu.Unlock()
	if err != nil && !errors.Is(err, ErrUnexpectedSignal) {
		n.fail(err)
	}
	return err
}

func (n *Negotiator) apply(s core.Signal) error {
	if n.state.Terminal() {
		return fmt.Errorf("%w: %s after %s", ErrUnexpectedSignal, s.Type, n.state)
	}
	switch s.Type {
	case core.SignalOffer:
		if n.state != StateAwaitingOffer {
			return fmt.Errorf("%w: offer in %s", ErrUnexpectedSignal, n.state)
		}
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(s.Payload, &offer); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		n.setState(StateAnswering, nil)
		if err := n.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		n.remoteSet = true
		if err := n.flush(); err != nil {
			return err
		}
		answer, err := n.pc.CreateAnswer()
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := n.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		if err := n.send(core.SignalAnswer, answer); err != nil {
			return err
		}
		n.setState(StateStable, nil)

	case core.SignalAnswer:
		if n.state != StateOffering {
			return fmt.Errorf("%w: answer in %s", ErrUnexpectedSignal, n.state)
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(s.Payload, &answer); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		if err := n.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		n.remoteSet = true
		if err := n.flush(); err != nil {
			return err
		}
		n.setState(StateStable, nil)

	case core.SignalCandidate:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(s.Payload, &c); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		if !n.remoteSet {
			n.pending = append(n.pending, c)
			return nil
		}
		if err := n.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add candidate: %w", err)
		}

	default:
		return fmt.Errorf("%w: type %q", ErrUnexpectedSignal, s.Type)
	}
	return nil
}

// flush applies queued candidates in receipt order, then drops the queue.
func (n *Negotiator) flush() error {
	queued := n.pending
	n.pending = nil
	for i, c := range queued {
		if err := n.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add queued candidate %d: %w", i, err)
		}
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "peer").Str("key", string(n.cfg.RoomKey)).Int("count", len(queued)).Msg("flushed candidates")
	}
	return nil
}

func (n *Negotiator) send(t core.SignalType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	if err := n.cfg.Signaler.SendSignal(n.cfg.RoomKey, core.Signal{Type: t, Payload: payload}); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

func (n *Negotiator) onLocalCandidate(c webrtc.ICECandidateInit) {
	if n.done.Load() {
		return
	}
	if err := n.send(core.SignalCandidate, c); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("key", string(n.cfg.RoomKey)).Msg("local candidate not sent")
	}
}

func (n *Negotiator) onConnectionState(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		n.mu.Lock()
		if !n.state.Terminal() {
			n.setState(StateConnected, nil)
		}
		n.mu.Unlock()
	case webrtc.PeerConnectionStateFailed:
		n.fail(errors.New("peer connection failed"))
	default:
		log.Debug().Str("module", "peer").Str("key", string(n.cfg.RoomKey)).Str("pc_state", s.String()).Msg("connection state")
	}
}

// ToggleAudio flips the microphone and returns the new setting.
func (n *Negotiator) ToggleAudio() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audioOn = !n.audioOn
	if n.media != nil {
		n.media.SetAudioEnabled(n.audioOn)
	}
	return n.audioOn
}

// ToggleVideo flips the camera and returns the new setting.
func (n *Negotiator) ToggleVideo() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.videoOn = !n.videoOn
	if n.media != nil {
		n.media.SetVideoEnabled(n.videoOn)
	}
	return n.videoOn
}

// Hangup ends the call locally and tells the remote side.
func (n *Negotiator) Hangup() { n.teardown(StateClosed, nil, core.ReasonHangup) }

// Close releases everything without notifying the remote side, for calls
// the remote or the server already ended.
func (n *Negotiator) Close() { n.teardown(StateClosed, nil, "") }

func (n *Negotiator) fail(err error) {
	log.Error().Err(err).Str("module", "peer").Str("key", string(n.cfg.RoomKey)).Msg("negotiation failed")
	n.teardown(StateFailed, err, err.Error())
}

// teardown is idempotent. Resources are released outside the lock since
// closing the connection fires state callbacks.
func (n *Negotiator) teardown(next State, cause error, endReason string) {
	n.mu.Lock()
	if n.state.Terminal() {
		n.mu.Unlock()
		return
	}
	n.done.Store(true)
	pc, media := n.pc, n.media
	n.pc, n.media, n.pending = nil, nil, nil
	n.remoteSet = false
	n.setState(next, cause)
	n.mu.Unlock()

	if media != nil {
		media.Stop()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("key", string(n.cfg.RoomKey)).Msg("close peer connection")
		}
	}
	if endReason != "" && n.cfg.Signaler != nil {
		if err := n.cfg.Signaler.EndCall(n.cfg.CallID, n.cfg.RoomKey, endReason); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("key", string(n.cfg.RoomKey)).Msg("call-end not sent")
		}
	}
}

// Pending reports how many remote candidates wait for a remote description.
func (n *Negotiator) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}
