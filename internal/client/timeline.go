package client

import (
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

const DefaultTolerance = 5 * time.Second

type Entry struct {
	Message domain.ChatMessage
	Pending bool
}

// Timeline is an ordered message list with optimistic local sends. A pending
// entry is replaced in place by the server's copy instead of duplicated.
type Timeline struct {
	mu        sync.Mutex
	entries   []Entry
	tolerance time.Duration
	now       func() time.Time
}

func NewTimeline(tolerance time.Duration) *Timeline {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Timeline{tolerance: tolerance, now: time.Now}
}

func (t *Timeline) AddPending(tempID string, sender domain.UserID, content string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := Entry{
		Message: domain.ChatMessage{TempID: tempID, SenderID: sender, Content: content, SentAt: t.now()},
		Pending: true,
	}
	t.entries = append(t.entries, e)
	return e
}

// Reconcile merges a server message. It reports whether a pending entry was
// replaced. A message already in the timeline is ignored.
func (t *Timeline) Reconcile(m domain.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if !e.Pending && m.ID != "" && e.Message.ID == m.ID {
			return false
		}
	}
	if i := t.match(m); i >= 0 {
		t.entries[i] = Entry{Message: m}
		return true
	}
	t.entries = append(t.entries, Entry{Message: m})
	return false
}

func (t *Timeline) match(m domain.ChatMessage) int {
	for i, e := range t.entries {
		if !e.Pending {
			continue
		}
		if m.TempID != "" && e.Message.TempID == m.TempID {
			return i
		}
		if e.Message.SenderID != m.SenderID || e.Message.Content != m.Content {
			continue
		}
		d := m.SentAt.Sub(e.Message.SentAt)
		if d < 0 {
			d = -d
		}
		if d <= t.tolerance {
			return i
		}
	}
	return -1
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Follow keeps the timeline in sync with one room's messages.
func (t *Timeline) Follow(c *Client, rid domain.RoomID) (release func()) {
	return On(c, core.EvReceiveMessage, func(e core.MessageEvent) {
		if e.Message.RoomID == rid {
			t.Reconcile(e.Message)
		}
	})
}
