package app

import (
	"sort"

	"github.com/dkeye/Parley/internal/domain"
)

// DirectChannels holds the transports subscribed to each one-to-one
// conversation. Direct channels have no roster.
type DirectChannels struct {
	subs        map[string]map[domain.TransportID]domain.UserID
	byTransport map[domain.TransportID]map[string]struct{}
}

func NewDirectChannels() *DirectChannels {
	return &DirectChannels{
		subs:        make(map[string]map[domain.TransportID]domain.UserID),
		byTransport: make(map[domain.TransportID]map[string]struct{}),
	}
}

func (d *DirectChannels) Join(cid domain.ConversationID, uid domain.UserID, tid domain.TransportID) bool {
	key := cid.DirectKey()
	set, ok := d.subs[key]
	if !ok {
		set = make(map[domain.TransportID]domain.UserID)
		d.subs[key] = set
	}
	if _, ok := set[tid]; ok {
		return false
	}
	set[tid] = uid
	keys, ok := d.byTransport[tid]
	if !ok {
		keys = make(map[string]struct{})
		d.byTransport[tid] = keys
	}
	keys[key] = struct{}{}
	return true
}

func (d *DirectChannels) Leave(cid domain.ConversationID, tid domain.TransportID) bool {
	return d.drop(cid.DirectKey(), tid)
}

func (d *DirectChannels) drop(key string, tid domain.TransportID) bool {
	set, ok := d.subs[key]
	if !ok {
		return false
	}
	if _, ok := set[tid]; !ok {
		return false
	}
	delete(set, tid)
	if len(set) == 0 {
		delete(d.subs, key)
	}
	keys := d.byTransport[tid]
	delete(keys, key)
	if len(keys) == 0 {
		delete(d.byTransport, tid)
	}
	return true
}

func (d *DirectChannels) Subscribed(cid domain.ConversationID, tid domain.TransportID) bool {
	_, ok := d.subs[cid.DirectKey()][tid]
	return ok
}

// Subscribers lists the transports of a conversation by id.
func (d *DirectChannels) Subscribers(cid domain.ConversationID) []domain.TransportID {
	set := d.subs[cid.DirectKey()]
	out := make([]domain.TransportID, 0, len(set))
	for tid := range set {
		out = append(out, tid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Disconnect drops every subscription of tid and returns the channel keys.
func (d *DirectChannels) Disconnect(tid domain.TransportID) []string {
	keys := make([]string, 0, len(d.byTransport[tid]))
	for key := range d.byTransport[tid] {
		keys = append(keys, key)
	}
	for _, key := range keys {
		d.drop(key, tid)
	}
	sort.Strings(keys)
	return keys
}
