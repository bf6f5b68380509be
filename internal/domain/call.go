package domain

import (
	"errors"
	"time"
)

type (
	CallID  string
	RoomKey string
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

var ErrCallTypeInvalid = errors.New("invalid call type")

func ParseCallType(raw string) (CallType, error) {
	switch CallType(raw) {
	case CallAudio, CallVideo:
		return CallType(raw), nil
	case "":
		return CallAudio, nil
	}
	return "", ErrCallTypeInvalid
}

type CallState string

const (
	CallRinging   CallState = "ringing"
	CallConnected CallState = "connected"
	CallRejected  CallState = "rejected"
	CallEnded     CallState = "ended"
)

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool { return s == CallRejected || s == CallEnded }

type CallSession struct {
	ID         CallID    `json:"callId"`
	CallerID   UserID    `json:"callerId"`
	ReceiverID UserID    `json:"receiverId"`
	RoomKey    RoomKey   `json:"roomKey"`
	Type       CallType  `json:"type"`
	State      CallState `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Peer returns the other participant, or false if uid is not part of the call.
func (c *CallSession) Peer(uid UserID) (UserID, bool) {
	switch uid {
	case c.CallerID:
		return c.ReceiverID, true
	case c.ReceiverID:
		return c.CallerID, true
	}
	return "", false
}
