package domain

import (
	"errors"
	"time"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

type MessageID string

// ChatMessage is relayed to a room or a direct conversation. ID is assigned by
// the server; TempID echoes the sender's optimistic id.
type ChatMessage struct {
	ID             MessageID      `json:"id"`
	TempID         string         `json:"tempId,omitempty"`
	RoomID         RoomID         `json:"roomId,omitempty"`
	ConversationID ConversationID `json:"conversationId,omitempty"`
	SenderID       UserID         `json:"senderId"`
	SenderName     string         `json:"senderName"`
	Content        string         `json:"content"`
	SentAt         time.Time      `json:"sentAt"`
}

type MessageEdit struct {
	MessageID MessageID `json:"messageId"`
	RoomID    RoomID    `json:"roomId"`
	UserID    UserID    `json:"userId"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"editedAt"`
}

type Reaction struct {
	MessageID MessageID `json:"messageId"`
	RoomID    RoomID    `json:"roomId"`
	UserID    UserID    `json:"userId"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reactedAt"`
}

func ValidateContent(content string) error {
	if content == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}
