package client

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/peer"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoCall = errors.New("no such call")

type CallOptions struct {
	NewPeerConnection func() (peer.PeerConnection, error)
	AcquireMedia      func(domain.CallType) (peer.LocalMedia, error)

	// OnIncoming is told about a ringing call; answer with Accept or Reject.
	OnIncoming    func(core.CallNotice)
	OnEnded       func(core.CallNotice)
	OnState       func(domain.CallID, peer.State, error)
	OnRemoteTrack func(domain.CallID, *webrtc.TrackRemote)
}

// Calls drives one negotiator per call over the client's connection.
// Negotiators only ever call back into Calls through the Signaler methods.
type Calls struct {
	c    *Client
	opts CallOptions

	mu       sync.Mutex
	byKey    map[domain.RoomKey]*peer.Negotiator
	byID     map[domain.CallID]domain.RoomKey
	incoming map[domain.CallID]core.CallNotice

	release []func()
}

var _ peer.Signaler = (*Calls)(nil)

func NewCalls(c *Client, opts CallOptions) *Calls {
	k := &Calls{
		c:        c,
		opts:     opts,
		byKey:    make(map[domain.RoomKey]*peer.Negotiator),
		byID:     make(map[domain.CallID]domain.RoomKey),
		incoming: make(map[domain.CallID]core.CallNotice),
	}
	k.release = []func(){
		On(c, core.EvIncomingCall, k.onIncoming),
		On(c, core.EvCallAccepted, k.onAccepted),
		On(c, core.EvCallRejected, k.onFinished),
		On(c, core.EvCallEnded, k.onFinished),
		On(c, core.EvCallSignal, k.onSignal),
		c.WatchState(k.onTransport),
	}
	return k
}

func (k *Calls) SendSignal(key domain.RoomKey, s core.Signal) error {
	return k.c.Send(&core.CallSignal{RoomKey: key, Signal: s})
}

func (k *Calls) EndCall(id domain.CallID, key domain.RoomKey, reason string) error {
	return k.c.Send(&core.CallEnd{CallID: id, RoomKey: key, Reason: reason})
}

func (k *Calls) negotiator(id domain.CallID, key domain.RoomKey, ct domain.CallType, initiator bool) *peer.Negotiator {
	n := peer.New(peer.Config{
		CallID:            id,
		RoomKey:           key,
		Type:              ct,
		Initiator:         initiator,
		NewPeerConnection: k.opts.NewPeerConnection,
		AcquireMedia:      k.opts.AcquireMedia,
		Signaler:          k,
		OnState: func(s peer.State, err error) {
			if s.Terminal() {
				k.forget(id, key)
			}
			if k.opts.OnState != nil {
				k.opts.OnState(id, s, err)
			}
		},
		OnRemoteTrack: func(t *webrtc.TrackRemote) {
			if k.opts.OnRemoteTrack != nil {
				k.opts.OnRemoteTrack(id, t)
			}
		},
	})
	k.mu.Lock()
	k.byKey[key] = n
	k.byID[id] = key
	k.mu.Unlock()
	return n
}

func (k *Calls) forget(id domain.CallID, key domain.RoomKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.byKey, key)
	delete(k.byID, id)
}

// Dial rings receiver. The offer goes out once the receiver accepts.
func (k *Calls) Dial(receiver domain.UserID, ct domain.CallType) (*peer.Negotiator, error) {
	id := domain.CallID(uuid.NewString())
	key := domain.RoomKey("call-" + uuid.NewString())
	n := k.negotiator(id, key, ct, true)
	err := k.c.Send(&core.CallInitiate{
		CallID:     id,
		CallerID:   k.c.UserID(),
		ReceiverID: receiver,
		RoomKey:    key,
		CallType:   ct,
	})
	if err != nil {
		k.forget(id, key)
		return nil, fmt.Errorf("call-initiate: %w", err)
	}
	return n, nil
}

// Accept answers a ringing call: local media is ready before the caller is
// told, so the offer always finds a negotiator waiting.
func (k *Calls) Accept(id domain.CallID) (*peer.Negotiator, error) {
	k.mu.Lock()
	notice, ok := k.incoming[id]
	delete(k.incoming, id)
	k.mu.Unlock()
	if !ok {
		return nil, ErrNoCall
	}
	n := k.negotiator(notice.CallID, notice.RoomKey, notice.CallType, false)
	if err := n.Start(); err != nil {
		return nil, err
	}
	if err := k.c.Send(core.AcceptCall(id)); err != nil {
		n.Close()
		return nil, fmt.Errorf("call-accept: %w", err)
	}
	return n, nil
}

func (k *Calls) Reject(id domain.CallID, reason string) error {
	k.mu.Lock()
	_, ok := k.incoming[id]
	delete(k.incoming, id)
	k.mu.Unlock()
	if !ok {
		return ErrNoCall
	}
	return k.c.Send(core.RejectCall(id, reason))
}

// Hangup ends a call locally and tells the remote side.
func (k *Calls) Hangup(key domain.RoomKey) error {
	n := k.Active(key)
	if n == nil {
		return ErrNoCall
	}
	n.Hangup()
	return nil
}

func (k *Calls) Active(key domain.RoomKey) *peer.Negotiator {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.byKey[key]
}

// Keys lists the room keys of calls with a live negotiator.
func (k *Calls) Keys() []domain.RoomKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]domain.RoomKey, 0, len(k.byKey))
	for key := range k.byKey {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (k *Calls) byCallID(id domain.CallID) *peer.Negotiator {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.byKey[k.byID[id]]
}

func (k *Calls) onIncoming(e core.CallNotice) {
	k.mu.Lock()
	k.incoming[e.CallID] = e
	k.mu.Unlock()
	log.Info().Str("module", "client.calls").Str("call", string(e.CallID)).Str("from", string(e.CallerID)).Msg("incoming call")
	if k.opts.OnIncoming != nil {
		k.opts.OnIncoming(e)
	}
}

func (k *Calls) onAccepted(e core.CallNotice) {
	n := k.byCallID(e.CallID)
	if n == nil {
		log.Debug().Str("module", "client.calls").Str("call", string(e.CallID)).Msg("accept for unknown call")
		return
	}
	if err := n.Start(); err != nil {
		log.Error().Err(err).Str("module", "client.calls").Str("call", string(e.CallID)).Msg("start negotiation")
	}
}

// onFinished handles call-rejected and call-ended. The server already told
// the other side, so the negotiator closes without signaling.
func (k *Calls) onFinished(e core.CallNotice) {
	k.mu.Lock()
	delete(k.incoming, e.CallID)
	k.mu.Unlock()
	n := k.byCallID(e.CallID)
	if n == nil {
		n = k.Active(e.RoomKey)
	}
	if n != nil {
		n.Close()
	}
	log.Info().Str("module", "client.calls").Str("call", string(e.CallID)).Str("reason", e.Reason).Msg(string(e.Type))
	if k.opts.OnEnded != nil {
		k.opts.OnEnded(e)
	}
}

func (k *Calls) onSignal(e core.CallSignalOut) {
	n := k.Active(e.RoomKey)
	if n == nil {
		log.Debug().Str("module", "client.calls").Str("key", string(e.RoomKey)).Msg("signal for unknown call")
		return
	}
	if err := n.HandleSignal(e.Signal); err != nil {
		log.Warn().Err(err).Str("module", "client.calls").Str("key", string(e.RoomKey)).Msg("signal not applied")
	}
}

// onTransport closes every call when the connection drops: the server ends
// them on its side when the transport goes away.
func (k *Calls) onTransport(s State) {
	if s == StateConnected {
		return
	}
	k.mu.Lock()
	active := make([]*peer.Negotiator, 0, len(k.byKey))
	for _, n := range k.byKey {
		active = append(active, n)
	}
	k.incoming = make(map[domain.CallID]core.CallNotice)
	k.mu.Unlock()
	for _, n := range active {
		n.Close()
	}
}

// Close ends every call and detaches from the client. While the client is
// connected the remote sides are told: live calls are hung up and ringing
// ones rejected.
func (k *Calls) Close() {
	for _, release := range k.release {
		release()
	}
	if k.c.State() != StateConnected {
		k.onTransport(StateClosed)
		return
	}
	k.mu.Lock()
	active := make([]*peer.Negotiator, 0, len(k.byKey))
	for _, n := range k.byKey {
		active = append(active, n)
	}
	ringing := make([]domain.CallID, 0, len(k.incoming))
	for id := range k.incoming {
		ringing = append(ringing, id)
	}
	k.mu.Unlock()
	for _, n := range active {
		n.Hangup()
	}
	for _, id := range ringing {
		if err := k.Reject(id, core.ReasonHangup); err != nil {
			log.Debug().Err(err).Str("module", "client.calls").Str("call", string(id)).Msg("reject on close")
		}
	}
}
