package domain

import "time"

// RoomMembership records that a user has been in a room during this process
// lifetime. Entries are never deleted; Online flips on join/leave/disconnect.
type RoomMembership struct {
	RoomID      RoomID      `json:"roomId"`
	UserID      UserID      `json:"userId"`
	TransportID TransportID `json:"-"`
	DisplayName string      `json:"displayName"`
	Online      bool        `json:"online"`
	JoinedAt    time.Time   `json:"joinedAt"`
}
