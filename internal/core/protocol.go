package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEvent = errors.New("unknown_event")
	ErrBadPayload   = errors.New("bad_payload")
)

var inbound = map[EventType]func() Inbound{
	EvRegisterIdentity: func() Inbound { return &RegisterIdentity{} },
	EvJoinRoom:         func() Inbound { return &RoomPresence{} },
	EvLeaveRoom:        func() Inbound { return &RoomPresence{leave: true} },
	EvSendMessage:      func() Inbound { return &SendMessage{} },
	EvEditMessage:      func() Inbound { return &EditMessage{} },
	EvReactMessage:     func() Inbound { return &ReactMessage{} },
	EvTyping:           func() Inbound { return &Typing{} },
	EvStopTyping:       func() Inbound { return &Typing{stop: true} },
	EvJoinDirect:       func() Inbound { return &DirectPresence{} },
	EvLeaveDirect:      func() Inbound { return &DirectPresence{leave: true} },
	EvSendDirect:       func() Inbound { return &SendDirect{} },
	EvCallInitiate:     func() Inbound { return &CallInitiate{} },
	EvCallAccept:       func() Inbound { return &CallAnswer{} },
	EvCallReject:       func() Inbound { return &CallAnswer{reject: true} },
	EvCallSignal:       func() Inbound { return &CallSignal{} },
	EvCallEnd:          func() Inbound { return &CallEnd{} },
	EvPing:             func() Inbound { return &Ping{} },
}

// Decode parses and validates one client frame. Errors wrap ErrUnknownEvent or
// ErrBadPayload so callers can report a stable code.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	ctor, ok := inbound[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	ev := ctor()
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	return ev, nil
}

// Encode marshals an inbound event with its envelope tag. Used by clients.
func Encode(ev Inbound) (Frame, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return tag(ev.Type(), body)
}

// EncodeOut marshals a server event. Outbound structs embed Head.
func EncodeOut(v Outbound) (Frame, error) {
	return json.Marshal(v)
}

func tag(t EventType, body []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	fields["type"] = raw
	return json.Marshal(fields)
}

// PeekType returns the envelope tag of any frame without validating the rest.
func PeekType(data []byte) (EventType, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
