package orch

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onRoomPresence(tid domain.TransportID, uid domain.UserID, e *core.RoomPresence) {
	if e.UserID != uid {
		o.reject(tid, "forbidden", "userId does not match registration")
		return
	}
	if e.Type() == core.EvLeaveRoom {
		if !o.Rooms.Leave(e.RoomID, uid) {
			log.Debug().Str("module", "orch").Str("room", string(e.RoomID)).Str("user", string(uid)).Msg("leave without membership")
			return
		}
		o.publishRoster(e.RoomID)
		return
	}
	o.Rooms.Join(e.RoomID, uid, tid, e.DisplayName)
	o.publishRoster(e.RoomID)
}

func (o *Orchestrator) member(tid domain.TransportID, rid domain.RoomID, uid domain.UserID) (domain.RoomMembership, bool) {
	m, ok := o.Rooms.Member(rid, uid)
	if !ok {
		o.reject(tid, "forbidden", "not a member of "+string(rid))
	}
	return m, ok
}

func (o *Orchestrator) onSendMessage(tid domain.TransportID, uid domain.UserID, e *core.SendMessage) {
	m, ok := o.member(tid, e.RoomID, uid)
	if !ok {
		return
	}
	msg := domain.ChatMessage{
		ID:         domain.MessageID(o.newID()),
		TempID:     e.TempID,
		RoomID:     e.RoomID,
		SenderID:   uid,
		SenderName: m.DisplayName,
		Content:    e.Content,
		SentAt:     o.now().UTC(),
	}
	var exclude domain.UserID
	if e.ExcludeSender {
		exclude = uid
	}
	o.broadcastToRoom(e.RoomID, core.MessageEvent{Head: core.Head{Type: core.EvReceiveMessage}, Message: msg}, exclude)
	if o.Archive != nil {
		o.Archive.AppendMessage(msg)
	}
}

func (o *Orchestrator) onEditMessage(tid domain.TransportID, uid domain.UserID, e *core.EditMessage) {
	if _, ok := o.member(tid, e.RoomID, uid); !ok {
		return
	}
	edit := domain.MessageEdit{
		MessageID: e.MessageID,
		RoomID:    e.RoomID,
		UserID:    uid,
		Content:   e.Content,
		EditedAt:  o.now().UTC(),
	}
	o.broadcastToRoom(e.RoomID, core.MessageEdited{Head: core.Head{Type: core.EvMessageEdited}, Edit: edit}, "")
	if o.Archive != nil {
		o.Archive.AppendEdit(edit)
	}
}

func (o *Orchestrator) onReactMessage(tid domain.TransportID, uid domain.UserID, e *core.ReactMessage) {
	if _, ok := o.member(tid, e.RoomID, uid); !ok {
		return
	}
	r := domain.Reaction{
		MessageID: e.MessageID,
		RoomID:    e.RoomID,
		UserID:    uid,
		Emoji:     e.Emoji,
		ReactedAt: o.now().UTC(),
	}
	o.broadcastToRoom(e.RoomID, core.MessageReacted{Head: core.Head{Type: core.EvMessageReacted}, Reaction: r}, "")
	if o.Archive != nil {
		o.Archive.AppendReaction(r)
	}
}

// onTyping relays to the other online members. Non-members are ignored.
func (o *Orchestrator) onTyping(uid domain.UserID, e *core.Typing) {
	m, ok := o.Rooms.Member(e.RoomID, uid)
	if !ok {
		log.Debug().Str("module", "orch").Str("room", string(e.RoomID)).Str("user", string(uid)).Msg("typing from non-member")
		return
	}
	name := e.DisplayName
	if name == "" {
		name = m.DisplayName
	}
	t := core.EvUserTyping
	if e.Type() == core.EvStopTyping {
		t = core.EvUserStopTyping
	}
	o.broadcastToRoom(e.RoomID, core.UserTyping{
		Head:        core.Head{Type: t},
		RoomID:      e.RoomID,
		UserID:      uid,
		DisplayName: name,
	}, uid)
}

func (o *Orchestrator) onDirectPresence(tid domain.TransportID, uid domain.UserID, e *core.DirectPresence) {
	if e.UserID != uid {
		o.reject(tid, "forbidden", "userId does not match registration")
		return
	}
	if e.Type() == core.EvLeaveDirect {
		o.Direct.Leave(e.ConversationID, tid)
		return
	}
	if o.Direct.Join(e.ConversationID, uid, tid) {
		log.Debug().Str("module", "orch").Str("conversation", string(e.ConversationID)).Str("user", string(uid)).Msg("joined direct channel")
	}
}

func (o *Orchestrator) onSendDirect(tid domain.TransportID, uid domain.UserID, e *core.SendDirect) {
	if !o.Direct.Subscribed(e.ConversationID, tid) {
		o.reject(tid, "forbidden", "not subscribed to "+string(e.ConversationID))
		return
	}
	msg := domain.ChatMessage{
		ID:             domain.MessageID(o.newID()),
		TempID:         e.TempID,
		ConversationID: e.ConversationID,
		SenderID:       uid,
		SenderName:     string(uid),
		Content:        e.Content,
		SentAt:         o.now().UTC(),
	}
	o.broadcastToDirect(e.ConversationID, core.MessageEvent{Head: core.Head{Type: core.EvReceiveDirect}, Message: msg})
	if o.Archive != nil {
		o.Archive.AppendMessage(msg)
	}
}
