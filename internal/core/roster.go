package core

import (
	"sort"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// Roster is the membership table of one room. It is not safe for concurrent
// use: the coordinator loop is its only writer and reader.
type Roster struct {
	id      domain.RoomID
	members map[domain.UserID]*domain.RoomMembership
}

func NewRoster(id domain.RoomID) *Roster {
	return &Roster{
		id:      id,
		members: make(map[domain.UserID]*domain.RoomMembership),
	}
}

func (r *Roster) ID() domain.RoomID { return r.id }

// Join adds or reactivates a membership and rebinds it to tid.
// It reports whether the online flag changed.
func (r *Roster) Join(uid domain.UserID, tid domain.TransportID, name string, now time.Time) (domain.RoomMembership, bool) {
	m, ok := r.members[uid]
	if !ok {
		m = &domain.RoomMembership{RoomID: r.id, UserID: uid, JoinedAt: now}
		r.members[uid] = m
	}
	changed := !m.Online
	if changed {
		m.JoinedAt = now
	}
	m.Online = true
	m.TransportID = tid
	if name != "" {
		m.DisplayName = name
	} else if m.DisplayName == "" {
		m.DisplayName = string(uid)
	}
	return *m, changed
}

// Leave marks the membership offline. Unknown users are ignored.
func (r *Roster) Leave(uid domain.UserID) bool {
	m, ok := r.members[uid]
	if !ok || !m.Online {
		return false
	}
	m.Online = false
	return true
}

// Retract marks uid offline only if its membership is still owned by tid.
func (r *Roster) Retract(uid domain.UserID, tid domain.TransportID) bool {
	m, ok := r.members[uid]
	if !ok || m.TransportID != tid {
		return false
	}
	return r.Leave(uid)
}

// OnlineCount is always derived from the membership table.
func (r *Roster) OnlineCount() int {
	n := 0
	for _, m := range r.members {
		if m.Online {
			n++
		}
	}
	return n
}

func (r *Roster) Member(uid domain.UserID) (domain.RoomMembership, bool) {
	m, ok := r.members[uid]
	if !ok {
		return domain.RoomMembership{}, false
	}
	return *m, true
}

// Online returns the online memberships ordered by user id.
func (r *Roster) Online() []domain.RoomMembership {
	out := make([]domain.RoomMembership, 0, len(r.members))
	for _, m := range r.members {
		if m.Online {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Snapshot is a read-only view for APIs (no transport fields).
func (r *Roster) Snapshot() []domain.User {
	online := r.Online()
	out := make([]domain.User, 0, len(online))
	for _, m := range online {
		out = append(out, domain.User{ID: m.UserID, DisplayName: m.DisplayName})
	}
	return out
}
