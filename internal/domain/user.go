// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type (
	UserID      string
	TransportID string
)

type User struct {
	ID          UserID `json:"userId"`
	DisplayName string `json:"displayName"`
}

// NewUser validates the identity supplied by an already authenticated caller.
// An empty display name falls back to the id.
func NewUser(id, displayName string) (*User, error) {
	uid, err := ParseUserID(id)
	if err != nil {
		return nil, err
	}
	u := &User{ID: uid}
	if err := u.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return u, nil
}

func ParseUserID(id string) (UserID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(id), nil
}

func (u *User) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	if name == "" {
		name = string(u.ID)
	}
	u.DisplayName = name
	return nil
}
