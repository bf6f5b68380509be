package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpadapter "github.com/dkeye/Parley/internal/adapters/http"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

func startServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	o := orch.New()
	go func() { _ = o.Run(ctx) }()
	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: t.TempDir()}
	srv := httptest.NewServer(httpadapter.SetupRouter(ctx, cfg, o, nil))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
}

// startClient runs a client; setup attaches handlers before the first dial.
func startClient(t *testing.T, url string, uid domain.UserID, setup ...func(*Client)) *Client {
	t.Helper()
	c := New(Options{
		URL:         url,
		UserID:      uid,
		DisplayName: string(uid),
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
	})
	for _, fn := range setup {
		fn(c)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		c.Close()
	})
	require.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, 5*time.Millisecond)
	return c
}

// dropConnection closes the socket under the client, as a network loss would.
func dropConnection(c *Client) {
	c.mu.Lock()
	ws := c.conn
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func record[T any](c *Client, t core.EventType) *recorder[T] {
	r := &recorder[T]{}
	On(c, t, func(v T) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, v)
	})
	return r
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func (r *recorder[T]) len() int { return len(r.all()) }

func TestSubscriptionReleaseIsIdempotent(t *testing.T) {
	c := New(Options{})
	calls := 0
	release := c.Subscribe(core.EvPong, func([]byte) { calls++ })
	c.subs.emit(core.EvPong, nil)
	release()
	release()
	c.subs.emit(core.EvPong, nil)
	assert.Equal(t, 1, calls)
	assert.Zero(t, c.subs.count())

	r1 := c.Subscribe(core.EvPong, func([]byte) {})
	c.Subscribe(core.EvRegistered, func([]byte) {})
	assert.Equal(t, 2, c.subs.count())
	c.Close()
	c.Close()
	assert.Zero(t, c.subs.count())
	r1()
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Send(&core.Ping{}), ErrClosed)
}

func TestBackoffIsCapped(t *testing.T) {
	lo, hi := 100*time.Millisecond, time.Second
	for n := 0; n < 20; n++ {
		d := backoff(n, lo, hi)
		assert.LessOrEqual(t, d, hi)
		assert.GreaterOrEqual(t, d, lo/2)
	}
	assert.GreaterOrEqual(t, backoff(10, lo, hi), hi/2)
}

func TestJoinWhileDisconnectedIsDeferred(t *testing.T) {
	c := New(Options{UserID: "A"})
	require.NoError(t, c.JoinRoom("general"))
	require.NoError(t, c.JoinDirect("c1"))
	assert.Equal(t, []domain.RoomID{"general"}, c.Joined())
	require.NoError(t, c.LeaveRoom("general"))
	assert.Empty(t, c.Joined())
}

func TestReconnectRestoresIdentityAndRooms(t *testing.T) {
	url := startServer(t)

	var statesMu sync.Mutex
	var states []State
	var received, direct *recorder[core.MessageEvent]
	var acks *recorder[core.Registered]
	a := startClient(t, url, "A", func(c *Client) {
		c.WatchState(func(s State) {
			statesMu.Lock()
			defer statesMu.Unlock()
			states = append(states, s)
		})
		acks = record[core.Registered](c, core.EvRegistered)
		received = record[core.MessageEvent](c, core.EvReceiveMessage)
		direct = record[core.MessageEvent](c, core.EvReceiveDirect)
	})
	var roster *recorder[core.RosterChanged]
	b := startClient(t, url, "B", func(c *Client) {
		roster = record[core.RosterChanged](c, core.EvRosterChanged)
	})
	lastOnline := func() int {
		got := roster.all()
		if len(got) == 0 {
			return 0
		}
		return got[len(got)-1].OnlineCount
	}

	require.NoError(t, a.JoinRoom("general"))
	require.NoError(t, a.JoinDirect("c1"))
	require.NoError(t, b.JoinRoom("general"))
	require.NoError(t, b.JoinDirect("c1"))
	require.Eventually(t, func() bool { return lastOnline() == 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return acks.len() == 1 }, waitFor, 5*time.Millisecond)

	dropConnection(a)
	require.Eventually(t, func() bool { return acks.len() == 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return a.State() == StateConnected }, waitFor, 5*time.Millisecond)

	statesMu.Lock()
	assert.Equal(t, []State{StateConnected, StateReconnecting, StateConnected}, states)
	statesMu.Unlock()

	// B's messages reach A through the replayed joins.
	require.Eventually(t, func() bool {
		_ = b.SendMessage("general", "", "after reconnect")
		_ = b.SendDirect("c1", "", "direct after reconnect")
		return received.len() > 0 && direct.len() > 0
	}, waitFor, 100*time.Millisecond)
	assert.Equal(t, "after reconnect", received.all()[0].Message.Content)
	assert.Equal(t, domain.UserID("B"), received.all()[0].Message.SenderID)
	assert.Equal(t, 2, acks.len(), "one handler call per connection")
	assert.Eventually(t, func() bool { return lastOnline() == 2 }, waitFor, 5*time.Millisecond)
}

func TestOptimisticSendIsNotDuplicated(t *testing.T) {
	url := startServer(t)
	a := startClient(t, url, "A")
	tl := NewTimeline(0)
	release := tl.Follow(a, "general")
	defer release()

	joined := record[core.RosterChanged](a, core.EvRosterChanged)
	require.NoError(t, a.JoinRoom("general"))
	require.Eventually(t, func() bool { return joined.len() > 0 }, waitFor, 5*time.Millisecond)

	tl.AddPending("tmp-1", "A", "hello")
	require.NoError(t, a.SendMessage("general", "tmp-1", "hello"))

	require.Eventually(t, func() bool {
		e := tl.Entries()
		return len(e) == 1 && !e[0].Pending
	}, waitFor, 5*time.Millisecond)
	e := tl.Entries()[0]
	assert.NotEmpty(t, e.Message.ID)
	assert.Equal(t, "hello", e.Message.Content)
	assert.Equal(t, "tmp-1", e.Message.TempID)
}
