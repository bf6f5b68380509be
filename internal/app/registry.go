package app

import (
	"sort"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

type transportEntry struct {
	UserID      domain.UserID
	Conn        core.SignalConnection
	ConnectedAt time.Time
}

// Registry maps transports to users. It holds no lock: the coordinator loop
// owns it.
type Registry struct {
	transports map[domain.TransportID]*transportEntry
	current    map[domain.UserID]domain.TransportID
}

func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[domain.TransportID]*transportEntry),
		current:    make(map[domain.UserID]domain.TransportID),
	}
}

// Attach records a connected transport that has not registered yet.
func (r *Registry) Attach(tid domain.TransportID, conn core.SignalConnection, now time.Time) {
	if e, ok := r.transports[tid]; ok {
		e.Conn = conn
		return
	}
	r.transports[tid] = &transportEntry{Conn: conn, ConnectedAt: now}
	log.Debug().Str("module", "app.registry").Str("tid", string(tid)).Msg("attached transport")
}

// Register binds uid to tid. A later registration of the same user replaces
// the earlier binding; the superseded transport stays resolvable until it
// disconnects. It returns the superseded transport, if any.
func (r *Registry) Register(uid domain.UserID, tid domain.TransportID, conn core.SignalConnection, now time.Time) (domain.TransportID, bool) {
	r.Attach(tid, conn, now)
	e := r.transports[tid]
	if e.UserID != "" && e.UserID != uid && r.current[e.UserID] == tid {
		delete(r.current, e.UserID)
	}
	e.UserID = uid

	prev, had := r.current[uid]
	r.current[uid] = tid
	if had && prev != tid {
		log.Info().Str("module", "app.registry").Str("user", string(uid)).
			Str("tid", string(tid)).Str("superseded", string(prev)).Msg("rebound user")
		return prev, true
	}
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("tid", string(tid)).Msg("registered user")
	return "", false
}

func (r *Registry) Resolve(tid domain.TransportID) (domain.UserID, bool) {
	e, ok := r.transports[tid]
	if !ok || e.UserID == "" {
		return "", false
	}
	return e.UserID, true
}

// Unregister drops the user binding of tid but keeps the transport attached.
// It reports whether tid was the user's current transport.
func (r *Registry) Unregister(tid domain.TransportID) (domain.UserID, bool) {
	e, ok := r.transports[tid]
	if !ok || e.UserID == "" {
		return "", false
	}
	uid := e.UserID
	e.UserID = ""
	if r.current[uid] != tid {
		return uid, false
	}
	delete(r.current, uid)
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("tid", string(tid)).Msg("unregistered user")
	return uid, true
}

// Detach forgets tid entirely.
func (r *Registry) Detach(tid domain.TransportID) (uid domain.UserID, current bool) {
	uid, current = r.Unregister(tid)
	delete(r.transports, tid)
	return uid, current
}

// Conn returns the connection of any attached transport.
func (r *Registry) Conn(tid domain.TransportID) (core.SignalConnection, bool) {
	e, ok := r.transports[tid]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// ConnOf returns only the user's current transport.
func (r *Registry) ConnOf(uid domain.UserID) (domain.TransportID, core.SignalConnection, bool) {
	tid, ok := r.current[uid]
	if !ok {
		return "", nil, false
	}
	return tid, r.transports[tid].Conn, true
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	_, ok := r.current[uid]
	return ok
}

// Transports lists every attached transport, registered or not, by id.
func (r *Registry) Transports() []domain.TransportID {
	out := make([]domain.TransportID, 0, len(r.transports))
	for tid := range r.transports {
		out = append(out, tid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int { return len(r.transports) }
