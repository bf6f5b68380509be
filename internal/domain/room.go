package domain

import (
	"errors"
	"strings"
)

const MaxRoomIDLen = 64

var ErrRoomIDInvalid = errors.New("invalid room id")

type (
	RoomID         string
	ConversationID string
)

func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDInvalid
	}
	return RoomID(raw), nil
}

func ParseConversationID(raw string) (ConversationID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDInvalid
	}
	return ConversationID(raw), nil
}

// DirectKey is the subscription key of a two-party conversation.
func (c ConversationID) DirectKey() string { return "dm-" + string(c) }

// RoomSummary is what list views render without joining the room.
type RoomSummary struct {
	RoomID      RoomID `json:"roomId"`
	OnlineCount int    `json:"onlineCount"`
}
