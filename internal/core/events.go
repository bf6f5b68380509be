package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/Parley/internal/domain"
)

type EventType string

// Client-emitted events.
const (
	EvRegisterIdentity EventType = "register-identity"
	EvJoinRoom         EventType = "join-room"
	EvLeaveRoom        EventType = "leave-room"
	EvSendMessage      EventType = "send-message"
	EvEditMessage      EventType = "edit-message"
	EvReactMessage     EventType = "react-message"
	EvTyping           EventType = "typing"
	EvStopTyping       EventType = "stop-typing"
	EvJoinDirect       EventType = "join-direct"
	EvLeaveDirect      EventType = "leave-direct"
	EvSendDirect       EventType = "send-direct"
	EvCallInitiate     EventType = "call-initiate"
	EvCallAccept       EventType = "call-accept"
	EvCallReject       EventType = "call-reject"
	EvCallSignal       EventType = "call-signal"
	EvCallEnd          EventType = "call-end"
	EvPing             EventType = "ping"
)

// Inbound is one validated client event. The set of implementations is closed:
// only the types registered in inbound can be produced by Decode.
type Inbound interface {
	Type() EventType
	validate() error
}

type RegisterIdentity struct {
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName,omitempty"`
}

func (*RegisterIdentity) Type() EventType { return EvRegisterIdentity }

func (e *RegisterIdentity) validate() error {
	u, err := domain.NewUser(string(e.UserID), e.DisplayName)
	if err != nil {
		return err
	}
	e.UserID, e.DisplayName = u.ID, u.DisplayName
	return nil
}

// RoomPresence carries join-room and leave-room.
type RoomPresence struct {
	RoomID      domain.RoomID `json:"roomId"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName,omitempty"`

	leave bool
}

func (e *RoomPresence) Type() EventType {
	if e.leave {
		return EvLeaveRoom
	}
	return EvJoinRoom
}

func (e *RoomPresence) validate() error {
	rid, err := domain.ParseRoomID(string(e.RoomID))
	if err != nil {
		return err
	}
	u, err := domain.NewUser(string(e.UserID), e.DisplayName)
	if err != nil {
		return err
	}
	e.RoomID, e.UserID, e.DisplayName = rid, u.ID, u.DisplayName
	return nil
}

type SendMessage struct {
	RoomID        domain.RoomID `json:"roomId"`
	TempID        string        `json:"tempId,omitempty"`
	Content       string        `json:"content"`
	ExcludeSender bool          `json:"excludeSender,omitempty"`
}

func (*SendMessage) Type() EventType { return EvSendMessage }

func (e *SendMessage) validate() error {
	rid, err := domain.ParseRoomID(string(e.RoomID))
	if err != nil {
		return err
	}
	e.RoomID = rid
	return domain.ValidateContent(e.Content)
}

type EditMessage struct {
	RoomID    domain.RoomID    `json:"roomId"`
	MessageID domain.MessageID `json:"messageId"`
	Content   string           `json:"content"`
}

func (*EditMessage) Type() EventType { return EvEditMessage }

func (e *EditMessage) validate() error {
	rid, err := domain.ParseRoomID(string(e.RoomID))
	if err != nil {
		return err
	}
	if e.MessageID == "" {
		return fmt.Errorf("missing messageId")
	}
	e.RoomID = rid
	return domain.ValidateContent(e.Content)
}

type ReactMessage struct {
	RoomID    domain.RoomID    `json:"roomId"`
	MessageID domain.MessageID `json:"messageId"`
	Emoji     string           `json:"emoji"`
}

func (*ReactMessage) Type() EventType { return EvReactMessage }

func (e *ReactMessage) validate() error {
	rid, err := domain.ParseRoomID(string(e.RoomID))
	if err != nil {
		return err
	}
	if e.MessageID == "" {
		return fmt.Errorf("missing messageId")
	}
	if e.Emoji == "" || len(e.Emoji) > 32 {
		return fmt.Errorf("invalid emoji")
	}
	e.RoomID = rid
	return nil
}

// Typing carries typing and stop-typing.
type Typing struct {
	RoomID      domain.RoomID `json:"roomId"`
	DisplayName string        `json:"displayName,omitempty"`

	stop bool
}

func (e *Typing) Type() EventType {
	if e.stop {
		return EvStopTyping
	}
	return EvTyping
}

func (e *Typing) validate() error {
	rid, err := domain.ParseRoomID(string(e.RoomID))
	if err != nil {
		return err
	}
	e.RoomID = rid
	if len(e.DisplayName) > domain.MaxDisplayNameLen {
		return domain.ErrDisplayNameTooLong
	}
	return nil
}

// DirectPresence carries join-direct and leave-direct.
type DirectPresence struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`

	leave bool
}

func (e *DirectPresence) Type() EventType {
	if e.leave {
		return EvLeaveDirect
	}
	return EvJoinDirect
}

func (e *DirectPresence) validate() error {
	cid, err := domain.ParseConversationID(string(e.ConversationID))
	if err != nil {
		return err
	}
	uid, err := domain.ParseUserID(string(e.UserID))
	if err != nil {
		return err
	}
	e.ConversationID, e.UserID = cid, uid
	return nil
}

type SendDirect struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	TempID         string                `json:"tempId,omitempty"`
	Content        string                `json:"content"`
}

func (*SendDirect) Type() EventType { return EvSendDirect }

func (e *SendDirect) validate() error {
	cid, err := domain.ParseConversationID(string(e.ConversationID))
	if err != nil {
		return err
	}
	e.ConversationID = cid
	return domain.ValidateContent(e.Content)
}

// CallInitiate uses callType on the wire; "type" is the envelope tag.
type CallInitiate struct {
	CallID     domain.CallID   `json:"callId,omitempty"`
	CallerID   domain.UserID   `json:"callerId"`
	ReceiverID domain.UserID   `json:"receiverId"`
	RoomKey    domain.RoomKey  `json:"roomKey"`
	CallType   domain.CallType `json:"callType"`
}

func (*CallInitiate) Type() EventType { return EvCallInitiate }

func (e *CallInitiate) validate() error {
	caller, err := domain.ParseUserID(string(e.CallerID))
	if err != nil {
		return err
	}
	receiver, err := domain.ParseUserID(string(e.ReceiverID))
	if err != nil {
		return err
	}
	if caller == receiver {
		return fmt.Errorf("caller and receiver are the same user")
	}
	key := domain.RoomKey(strings.TrimSpace(string(e.RoomKey)))
	if key == "" || len(key) > domain.MaxRoomIDLen {
		return fmt.Errorf("invalid roomKey")
	}
	ct, err := domain.ParseCallType(string(e.CallType))
	if err != nil {
		return err
	}
	e.CallerID, e.ReceiverID, e.RoomKey, e.CallType = caller, receiver, key, ct
	return nil
}

// CallAnswer carries call-accept and call-reject.
type CallAnswer struct {
	CallID domain.CallID `json:"callId"`
	Reason string        `json:"reason,omitempty"`

	reject bool
}

func (e *CallAnswer) Type() EventType {
	if e.reject {
		return EvCallReject
	}
	return EvCallAccept
}

func (e *CallAnswer) validate() error {
	if e.CallID == "" {
		return fmt.Errorf("missing callId")
	}
	return nil
}

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "ice-candidate"
)

// Signal is relayed without inspecting Payload.
type Signal struct {
	Type    SignalType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type CallSignal struct {
	RoomKey domain.RoomKey `json:"roomKey"`
	Signal  Signal         `json:"signal"`
}

func (*CallSignal) Type() EventType { return EvCallSignal }

func (e *CallSignal) validate() error {
	if e.RoomKey == "" {
		return fmt.Errorf("missing roomKey")
	}
	switch e.Signal.Type {
	case SignalOffer, SignalAnswer, SignalCandidate:
	default:
		return fmt.Errorf("unknown signal type %q", e.Signal.Type)
	}
	if len(e.Signal.Payload) == 0 {
		return fmt.Errorf("missing signal payload")
	}
	return nil
}

type CallEnd struct {
	CallID  domain.CallID  `json:"callId"`
	RoomKey domain.RoomKey `json:"roomKey"`
	Reason  string         `json:"reason,omitempty"`
}

func (*CallEnd) Type() EventType { return EvCallEnd }

func (e *CallEnd) validate() error {
	if e.CallID == "" && e.RoomKey == "" {
		return fmt.Errorf("missing callId and roomKey")
	}
	return nil
}

type Ping struct{}

func (*Ping) Type() EventType { return EvPing }
func (*Ping) validate() error { return nil }

func JoinRoom(rid domain.RoomID, uid domain.UserID, name string) *RoomPresence {
	return &RoomPresence{RoomID: rid, UserID: uid, DisplayName: name}
}

func LeaveRoom(rid domain.RoomID, uid domain.UserID, name string) *RoomPresence {
	return &RoomPresence{RoomID: rid, UserID: uid, DisplayName: name, leave: true}
}

func StartTyping(rid domain.RoomID, name string) *Typing {
	return &Typing{RoomID: rid, DisplayName: name}
}

func StopTyping(rid domain.RoomID, name string) *Typing {
	return &Typing{RoomID: rid, DisplayName: name, stop: true}
}

func JoinDirect(cid domain.ConversationID, uid domain.UserID) *DirectPresence {
	return &DirectPresence{ConversationID: cid, UserID: uid}
}

func LeaveDirect(cid domain.ConversationID, uid domain.UserID) *DirectPresence {
	return &DirectPresence{ConversationID: cid, UserID: uid, leave: true}
}

func AcceptCall(id domain.CallID) *CallAnswer { return &CallAnswer{CallID: id} }

func RejectCall(id domain.CallID, reason string) *CallAnswer {
	return &CallAnswer{CallID: id, Reason: reason, reject: true}
}
