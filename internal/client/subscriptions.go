package client

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/rs/zerolog/log"
)

type subscriptions struct {
	mu     sync.Mutex
	next   uint64
	byType map[core.EventType]map[uint64]func([]byte)
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byType: make(map[core.EventType]map[uint64]func([]byte))}
}

func (s *subscriptions) add(t core.EventType, fn func([]byte)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	hs, ok := s.byType[t]
	if !ok {
		hs = make(map[uint64]func([]byte))
		s.byType[t] = hs
	}
	hs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if hs, ok := s.byType[t]; ok {
				delete(hs, id)
				if len(hs) == 0 {
					delete(s.byType, t)
				}
			}
		})
	}
}

func (s *subscriptions) emit(t core.EventType, data []byte) {
	s.mu.Lock()
	fns := make([]func([]byte), 0, len(s.byType[t]))
	for _, fn := range s.byType[t] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (s *subscriptions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, hs := range s.byType {
		n += len(hs)
	}
	return n
}

func (s *subscriptions) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byType = make(map[core.EventType]map[uint64]func([]byte))
}

// On subscribes fn to t with the frame decoded into T.
func On[T any](c *Client, t core.EventType, fn func(T)) (release func()) {
	return c.Subscribe(t, func(data []byte) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("type", string(t)).Msg("decode event")
			return
		}
		fn(v)
	})
}
