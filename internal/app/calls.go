package app

import (
	"errors"
	"sort"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateRoomKey = errors.New("duplicate_room_key")
	ErrCallBusy         = errors.New("busy")
	ErrCallNotFound     = errors.New("call not found")
	ErrNotParticipant   = errors.New("not a call participant")
	ErrCallState        = errors.New("invalid call state")
)

// CallTable holds the sessions that have not reached a terminal state.
// Owned by the coordinator loop.
type CallTable struct {
	byID   map[domain.CallID]*domain.CallSession
	byKey  map[domain.RoomKey]domain.CallID
	byUser map[domain.UserID]domain.CallID
}

func NewCallTable() *CallTable {
	return &CallTable{
		byID:   make(map[domain.CallID]*domain.CallSession),
		byKey:  make(map[domain.RoomKey]domain.CallID),
		byUser: make(map[domain.UserID]domain.CallID),
	}
}

// Create stores a ringing session. Either participant already being in a
// call yields ErrCallBusy.
func (t *CallTable) Create(c domain.CallSession) (domain.CallSession, error) {
	if _, ok := t.byKey[c.RoomKey]; ok {
		return domain.CallSession{}, ErrDuplicateRoomKey
	}
	if _, ok := t.byID[c.ID]; ok {
		return domain.CallSession{}, ErrDuplicateRoomKey
	}
	if t.Busy(c.CallerID) || t.Busy(c.ReceiverID) {
		return domain.CallSession{}, ErrCallBusy
	}
	c.State = domain.CallRinging
	s := c
	t.byID[s.ID] = &s
	t.byKey[s.RoomKey] = s.ID
	t.byUser[s.CallerID] = s.ID
	t.byUser[s.ReceiverID] = s.ID
	log.Info().Str("module", "app.calls").Str("call", string(s.ID)).Str("key", string(s.RoomKey)).
		Str("caller", string(s.CallerID)).Str("receiver", string(s.ReceiverID)).Msg("call ringing")
	return s, nil
}

func (t *CallTable) Busy(uid domain.UserID) bool {
	_, ok := t.byUser[uid]
	return ok
}

func (t *CallTable) Get(id domain.CallID) (domain.CallSession, bool) {
	s, ok := t.byID[id]
	if !ok {
		return domain.CallSession{}, false
	}
	return *s, true
}

func (t *CallTable) ByKey(key domain.RoomKey) (domain.CallSession, bool) {
	id, ok := t.byKey[key]
	if !ok {
		return domain.CallSession{}, false
	}
	return t.Get(id)
}

// ActiveFor returns the call uid currently takes part in.
func (t *CallTable) ActiveFor(uid domain.UserID) (domain.CallSession, bool) {
	id, ok := t.byUser[uid]
	if !ok {
		return domain.CallSession{}, false
	}
	return t.Get(id)
}

// Accept moves a ringing call to connected. Only the receiver may accept.
func (t *CallTable) Accept(id domain.CallID, uid domain.UserID) (domain.CallSession, error) {
	s, err := t.answerable(id, uid)
	if err != nil {
		return domain.CallSession{}, err
	}
	s.State = domain.CallConnected
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("call connected")
	return *s, nil
}

// Reject moves a ringing call to rejected and removes it.
func (t *CallTable) Reject(id domain.CallID, uid domain.UserID) (domain.CallSession, error) {
	s, err := t.answerable(id, uid)
	if err != nil {
		return domain.CallSession{}, err
	}
	s.State = domain.CallRejected
	t.remove(s)
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("call rejected")
	return *s, nil
}

func (t *CallTable) answerable(id domain.CallID, uid domain.UserID) (*domain.CallSession, error) {
	s, ok := t.byID[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	if s.ReceiverID != uid {
		return nil, ErrNotParticipant
	}
	if s.State != domain.CallRinging {
		return nil, ErrCallState
	}
	return s, nil
}

// End finishes the call from either side and removes it.
func (t *CallTable) End(id domain.CallID, uid domain.UserID) (domain.CallSession, error) {
	s, ok := t.byID[id]
	if !ok {
		return domain.CallSession{}, ErrCallNotFound
	}
	if _, ok := s.Peer(uid); !ok {
		return domain.CallSession{}, ErrNotParticipant
	}
	s.State = domain.CallEnded
	t.remove(s)
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("by", string(uid)).Msg("call ended")
	return *s, nil
}

// Disconnect ends every call uid takes part in.
func (t *CallTable) Disconnect(uid domain.UserID) []domain.CallSession {
	active, ok := t.ActiveFor(uid)
	if !ok {
		return nil
	}
	s, err := t.End(active.ID, uid)
	if err != nil {
		return nil
	}
	return []domain.CallSession{s}
}

func (t *CallTable) remove(s *domain.CallSession) {
	delete(t.byID, s.ID)
	delete(t.byKey, s.RoomKey)
	if t.byUser[s.CallerID] == s.ID {
		delete(t.byUser, s.CallerID)
	}
	if t.byUser[s.ReceiverID] == s.ID {
		delete(t.byUser, s.ReceiverID)
	}
}

// Sessions lists active calls by id.
func (t *CallTable) Sessions() []domain.CallSession {
	out := make([]domain.CallSession, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
