package core

import "github.com/dkeye/Parley/internal/domain"

// Server-emitted events.
const (
	EvRegistered     EventType = "registered"
	EvRosterChanged  EventType = "roster-changed"
	EvRoomSummary    EventType = "room-summary"
	EvReceiveMessage EventType = "receive-message"
	EvMessageEdited  EventType = "message-edited"
	EvMessageReacted EventType = "message-reacted"
	EvUserTyping     EventType = "user-typing"
	EvUserStopTyping EventType = "user-stop-typing"
	EvReceiveDirect  EventType = "receive-direct"
	EvIncomingCall   EventType = "incoming-call"
	EvCallRinging    EventType = "call-ringing"
	EvCallAccepted   EventType = "call-accepted"
	EvCallRejected   EventType = "call-rejected"
	EvCallEnded      EventType = "call-ended"
	EvPong           EventType = "pong"
	EvError          EventType = "error"
)

// Call end/reject reasons set by the server.
const (
	ReasonPeerDisconnected = "peer-disconnected"
	ReasonUnavailable      = "unavailable"
	ReasonBusy             = "busy"
	ReasonHangup           = "hangup"
)

// Outbound is implemented by every server event through the embedded Head.
type Outbound interface {
	EventType() EventType
}

type Head struct {
	Type EventType `json:"type"`
}

func (h Head) EventType() EventType { return h.Type }

type Registered struct {
	Head
	UserID      domain.UserID      `json:"userId"`
	DisplayName string             `json:"displayName"`
	TransportID domain.TransportID `json:"transportId"`
}

type RosterChanged struct {
	Head
	RoomID      domain.RoomID `json:"roomId"`
	Members     []domain.User `json:"members"`
	OnlineCount int           `json:"onlineCount"`
}

type RoomSummary struct {
	Head
	domain.RoomSummary
}

// MessageEvent carries receive-message and receive-direct.
type MessageEvent struct {
	Head
	Message domain.ChatMessage `json:"message"`
}

type MessageEdited struct {
	Head
	Edit domain.MessageEdit `json:"edit"`
}

type MessageReacted struct {
	Head
	Reaction domain.Reaction `json:"reaction"`
}

// UserTyping carries user-typing and user-stop-typing.
type UserTyping struct {
	Head
	RoomID      domain.RoomID `json:"roomId"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
}

// CallNotice carries every call lifecycle event.
type CallNotice struct {
	Head
	CallID     domain.CallID   `json:"callId"`
	RoomKey    domain.RoomKey  `json:"roomKey"`
	CallerID   domain.UserID   `json:"callerId"`
	ReceiverID domain.UserID   `json:"receiverId"`
	CallType   domain.CallType `json:"callType"`
	Reason     string          `json:"reason,omitempty"`
}

func NewCallNotice(t EventType, c *domain.CallSession, reason string) CallNotice {
	return CallNotice{
		Head:       Head{Type: t},
		CallID:     c.ID,
		RoomKey:    c.RoomKey,
		CallerID:   c.CallerID,
		ReceiverID: c.ReceiverID,
		CallType:   c.Type,
		Reason:     reason,
	}
}

type CallSignalOut struct {
	Head
	RoomKey domain.RoomKey `json:"roomKey"`
	From    domain.UserID  `json:"from"`
	Signal  Signal         `json:"signal"`
}

type Pong struct {
	Head
}

type ErrorEvent struct {
	Head
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func NewError(code, detail string) ErrorEvent {
	return ErrorEvent{Head: Head{Type: EvError}, Error: code, Detail: detail}
}
