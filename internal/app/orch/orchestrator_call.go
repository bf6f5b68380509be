package orch

import (
	"errors"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onCallInitiate(tid domain.TransportID, uid domain.UserID, e *core.CallInitiate) {
	if e.CallerID != uid {
		o.reject(tid, "forbidden", "callerId does not match registration")
		return
	}
	s := domain.CallSession{
		ID:         e.CallID,
		CallerID:   e.CallerID,
		ReceiverID: e.ReceiverID,
		RoomKey:    e.RoomKey,
		Type:       e.CallType,
		CreatedAt:  o.now().UTC(),
	}
	if s.ID == "" {
		s.ID = domain.CallID(o.newID())
	}
	if !o.Registry.IsOnline(s.ReceiverID) {
		s.State = domain.CallEnded
		o.sendTo(tid, core.NewCallNotice(core.EvCallEnded, &s, core.ReasonUnavailable))
		return
	}
	created, err := o.Calls.Create(s)
	switch {
	case errors.Is(err, app.ErrCallBusy):
		s.State = domain.CallRejected
		o.sendTo(tid, core.NewCallNotice(core.EvCallRejected, &s, core.ReasonBusy))
		return
	case errors.Is(err, app.ErrDuplicateRoomKey):
		o.reject(tid, app.ErrDuplicateRoomKey.Error(), string(e.RoomKey))
		return
	case err != nil:
		log.Error().Err(err).Str("module", "orch").Msg("create call")
		return
	}
	o.sendToUser(created.ReceiverID, core.NewCallNotice(core.EvIncomingCall, &created, ""))
	o.sendTo(tid, core.NewCallNotice(core.EvCallRinging, &created, ""))
}

func (o *Orchestrator) onCallAnswer(uid domain.UserID, e *core.CallAnswer) {
	var (
		s   domain.CallSession
		err error
		t   core.EventType
	)
	if e.Type() == core.EvCallReject {
		s, err = o.Calls.Reject(e.CallID, uid)
		t = core.EvCallRejected
	} else {
		s, err = o.Calls.Accept(e.CallID, uid)
		t = core.EvCallAccepted
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("call", string(e.CallID)).Str("user", string(uid)).Msg("call answer dropped")
		return
	}
	o.sendToUser(s.CallerID, core.NewCallNotice(t, &s, e.Reason))
}

// onCallSignal forwards the envelope verbatim to the other participant.
// Signals without an active session are dropped.
func (o *Orchestrator) onCallSignal(uid domain.UserID, e *core.CallSignal) {
	s, ok := o.Calls.ByKey(e.RoomKey)
	if !ok {
		log.Debug().Str("module", "orch").Str("key", string(e.RoomKey)).Str("signal", string(e.Signal.Type)).Msg("signal for unknown call dropped")
		return
	}
	peer, ok := s.Peer(uid)
	if !ok {
		log.Debug().Str("module", "orch").Str("key", string(e.RoomKey)).Str("user", string(uid)).Msg("signal from non-participant dropped")
		return
	}
	o.sendToUser(peer, core.CallSignalOut{
		Head:    core.Head{Type: core.EvCallSignal},
		RoomKey: e.RoomKey,
		From:    uid,
		Signal:  e.Signal,
	})
}

func (o *Orchestrator) onCallEnd(uid domain.UserID, e *core.CallEnd) {
	id := e.CallID
	if id == "" {
		s, ok := o.Calls.ByKey(e.RoomKey)
		if !ok {
			log.Debug().Str("module", "orch").Str("key", string(e.RoomKey)).Msg("end for unknown call dropped")
			return
		}
		id = s.ID
	}
	s, err := o.Calls.End(id, uid)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("call", string(id)).Msg("call end dropped")
		return
	}
	reason := e.Reason
	if reason == "" {
		reason = core.ReasonHangup
	}
	peer, _ := s.Peer(uid)
	o.sendToUser(peer, core.NewCallNotice(core.EvCallEnded, &s, reason))
}
