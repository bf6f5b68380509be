package orch

import (
	"errors"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func newUUID() string { return uuid.NewString() }

func encode(v core.Outbound) core.Frame {
	f, err := core.EncodeOut(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", string(v.EventType())).Msg("encode failed")
		return nil
	}
	return f
}

func (o *Orchestrator) sendTo(tid domain.TransportID, v core.Outbound) {
	if f := encode(v); f != nil {
		o.deliver(tid, f)
	}
}

// sendToUser targets the user's current transport. Offline users are skipped.
func (o *Orchestrator) sendToUser(uid domain.UserID, v core.Outbound) bool {
	tid, _, ok := o.Registry.ConnOf(uid)
	if !ok {
		log.Debug().Str("module", "orch").Str("user", string(uid)).Str("event", string(v.EventType())).Msg("target offline, dropped")
		return false
	}
	o.sendTo(tid, v)
	return true
}

// deliver never blocks the loop; a full buffer is handed to the policy.
func (o *Orchestrator) deliver(tid domain.TransportID, f core.Frame) {
	conn, ok := o.Registry.Conn(tid)
	if !ok {
		return
	}
	err := conn.TrySend(f)
	if err == nil {
		return
	}
	if !errors.Is(err, core.ErrBackpressure) {
		log.Debug().Err(err).Str("module", "orch").Str("tid", string(tid)).Msg("send failed")
		return
	}
	action := app.KickMember
	if o.Policy != nil {
		action = o.Policy.OnBackPressure(tid, conn)
	}
	log.Warn().Str("module", "orch").Str("tid", string(tid)).Str("action", action.String()).Msg("backpressure")
	if action == app.DropFrame {
		return
	}
	conn.Close()
}

// broadcastToRoom sends to every online member of rid, optionally skipping one user.
func (o *Orchestrator) broadcastToRoom(rid domain.RoomID, v core.Outbound, exclude domain.UserID) {
	f := encode(v)
	if f == nil {
		return
	}
	for _, m := range o.Rooms.Members(rid) {
		if exclude != "" && m.UserID == exclude {
			continue
		}
		o.deliver(m.TransportID, f)
	}
}

func (o *Orchestrator) broadcastToDirect(cid domain.ConversationID, v core.Outbound) {
	f := encode(v)
	if f == nil {
		return
	}
	for _, tid := range o.Direct.Subscribers(cid) {
		o.deliver(tid, f)
	}
}

func (o *Orchestrator) broadcastAll(v core.Outbound) {
	f := encode(v)
	if f == nil {
		return
	}
	for _, tid := range o.Registry.Transports() {
		o.deliver(tid, f)
	}
}

// publishRoster emits roster-changed to the room and room-summary to every
// transport, both read from the roster at this point.
func (o *Orchestrator) publishRoster(rid domain.RoomID) {
	members := o.Rooms.RosterSnapshot(rid)
	count := o.Rooms.OnlineCount(rid)
	o.broadcastToRoom(rid, core.RosterChanged{
		Head:        core.Head{Type: core.EvRosterChanged},
		RoomID:      rid,
		Members:     members,
		OnlineCount: count,
	}, "")
	o.broadcastAll(core.RoomSummary{
		Head:        core.Head{Type: core.EvRoomSummary},
		RoomSummary: domain.RoomSummary{RoomID: rid, OnlineCount: count},
	})
}
