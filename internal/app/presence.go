package app

import (
	"sort"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence tracks room rosters and the rooms each user is in.
// Owned by the coordinator loop.
type Presence struct {
	rooms     map[domain.RoomID]*core.Roster
	userRooms map[domain.UserID]map[domain.RoomID]struct{}
	now       func() time.Time
}

func NewPresence(now func() time.Time) *Presence {
	if now == nil {
		now = time.Now
	}
	return &Presence{
		rooms:     make(map[domain.RoomID]*core.Roster),
		userRooms: make(map[domain.UserID]map[domain.RoomID]struct{}),
		now:       now,
	}
}

func (p *Presence) roster(rid domain.RoomID) *core.Roster {
	r, ok := p.rooms[rid]
	if !ok {
		r = core.NewRoster(rid)
		p.rooms[rid] = r
	}
	return r
}

// Join adds or reactivates the membership. Joining twice without a leave in
// between only refreshes the transport and display name.
func (p *Presence) Join(rid domain.RoomID, uid domain.UserID, tid domain.TransportID, name string) domain.RoomMembership {
	m, changed := p.roster(rid).Join(uid, tid, name, p.now())
	set, ok := p.userRooms[uid]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		p.userRooms[uid] = set
	}
	set[rid] = struct{}{}
	if changed {
		log.Info().Str("module", "app.presence").Str("room", string(rid)).Str("user", string(uid)).Msg("joined room")
	}
	return m
}

// Leave marks the membership offline. Leaving a room never joined is a no-op.
func (p *Presence) Leave(rid domain.RoomID, uid domain.UserID) bool {
	r, ok := p.rooms[rid]
	if !ok {
		return false
	}
	p.forget(uid, rid)
	if !r.Leave(uid) {
		return false
	}
	log.Info().Str("module", "app.presence").Str("room", string(rid)).Str("user", string(uid)).Msg("left room")
	return true
}

// Disconnect retracts every membership of uid owned by tid and returns the
// affected rooms in order. Memberships rebound to another transport stay.
func (p *Presence) Disconnect(uid domain.UserID, tid domain.TransportID) []domain.RoomID {
	var out []domain.RoomID
	for rid := range p.userRooms[uid] {
		if p.rooms[rid].Retract(uid, tid) {
			out = append(out, rid)
		}
	}
	for _, rid := range out {
		p.forget(uid, rid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if len(out) > 0 {
		log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("tid", string(tid)).
			Int("rooms", len(out)).Msg("retracted presence")
	}
	return out
}

func (p *Presence) forget(uid domain.UserID, rid domain.RoomID) {
	set := p.userRooms[uid]
	delete(set, rid)
	if len(set) == 0 {
		delete(p.userRooms, uid)
	}
}

func (p *Presence) OnlineCount(rid domain.RoomID) int {
	r, ok := p.rooms[rid]
	if !ok {
		return 0
	}
	return r.OnlineCount()
}

// RosterSnapshot lists the online users of a room ordered by id.
func (p *Presence) RosterSnapshot(rid domain.RoomID) []domain.User {
	r, ok := p.rooms[rid]
	if !ok {
		return []domain.User{}
	}
	return r.Snapshot()
}

// Members returns the online memberships, transport ids included.
func (p *Presence) Members(rid domain.RoomID) []domain.RoomMembership {
	r, ok := p.rooms[rid]
	if !ok {
		return nil
	}
	return r.Online()
}

func (p *Presence) Member(rid domain.RoomID, uid domain.UserID) (domain.RoomMembership, bool) {
	r, ok := p.rooms[rid]
	if !ok {
		return domain.RoomMembership{}, false
	}
	m, ok := r.Member(uid)
	if !ok || !m.Online {
		return domain.RoomMembership{}, false
	}
	return m, true
}

// RoomsOf returns the rooms uid is currently online in.
func (p *Presence) RoomsOf(uid domain.UserID) []domain.RoomID {
	out := make([]domain.RoomID, 0, len(p.userRooms[uid]))
	for rid := range p.userRooms[uid] {
		out = append(out, rid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Summaries covers every room seen since start, empty ones included.
func (p *Presence) Summaries() []domain.RoomSummary {
	out := make([]domain.RoomSummary, 0, len(p.rooms))
	for rid, r := range p.rooms {
		out = append(out, domain.RoomSummary{RoomID: rid, OnlineCount: r.OnlineCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
