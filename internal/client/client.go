// Package client is the signaling side of a chat client: one long-lived
// websocket that survives reconnects and restores its room subscriptions.
package client

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("client closed")
)

type Options struct {
	URL         string
	UserID      domain.UserID
	DisplayName string
	Header      http.Header
	Dialer      *websocket.Dialer
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	WriteWait   time.Duration
}

type Client struct {
	opts Options
	subs *subscriptions

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	rooms    map[domain.RoomID]struct{}
	directs  map[domain.ConversationID]struct{}
	watchers map[uint64]func(State)
	nextW    uint64

	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	return &Client{
		opts:     opts,
		subs:     newSubscriptions(),
		state:    StateConnecting,
		rooms:    make(map[domain.RoomID]struct{}),
		directs:  make(map[domain.ConversationID]struct{}),
		watchers: make(map[uint64]func(State)),
		closed:   make(chan struct{}),
	}
}

func (c *Client) UserID() domain.UserID { return c.opts.UserID }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WatchState calls fn on every transport state change until released.
func (c *Client) WatchState(fn func(State)) (release func()) {
	c.mu.Lock()
	id := c.nextW
	c.nextW++
	c.watchers[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	fns := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	log.Info().Str("module", "client").Str("state", string(s)).Msg("transport state")
	for _, fn := range fns {
		fn(s)
	}
}

// Subscribe attaches fn to one server event type. Handlers survive
// reconnects and run on the read goroutine.
func (c *Client) Subscribe(t core.EventType, fn func(data []byte)) (release func()) {
	return c.subs.add(t, fn)
}

// Run dials and keeps the connection alive until ctx ends or Close is called.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for attempt := 0; ; {
		if c.isClosed() {
			return nil
		}
		ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Int("attempt", attempt).Msg("dial failed")
			if attempt > 0 || c.State() != StateConnecting {
				c.setState(StateReconnecting)
			}
			if !c.wait(ctx, backoff(attempt, c.opts.MinBackoff, c.opts.MaxBackoff)) {
				return c.exit(ctx)
			}
			attempt++
			continue
		}
		attempt = 0
		c.attach(ws)
		err = c.readLoop(ws)
		c.detach(ws)
		if c.isClosed() {
			return c.exit(ctx)
		}
		log.Warn().Err(err).Str("module", "client").Msg("connection lost")
		c.setState(StateReconnecting)
		if !c.wait(ctx, backoff(0, c.opts.MinBackoff, c.opts.MaxBackoff)) {
			return c.exit(ctx)
		}
	}
}

func (c *Client) exit(ctx context.Context) error {
	c.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
}

// attach replays the identity and every joined channel on ws before it is
// published, so a concurrent JoinRoom either lands in the replay or is sent
// after registration. Failures are logged; the next reconnect tries again.
func (c *Client) attach(ws *websocket.Conn) {
	c.mu.Lock()
	c.rejoin(ws)
	c.conn = ws
	c.mu.Unlock()
	if c.isClosed() {
		_ = ws.Close()
		return
	}
	c.setState(StateConnected)
}

func (c *Client) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.conn == ws {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = ws.Close()
}

func (c *Client) rejoin(ws *websocket.Conn) {
	if err := c.write(ws, &core.RegisterIdentity{UserID: c.opts.UserID, DisplayName: c.opts.DisplayName}); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("register not sent")
		return
	}
	rooms := make([]domain.RoomID, 0, len(c.rooms))
	for rid := range c.rooms {
		rooms = append(rooms, rid)
	}
	directs := make([]domain.ConversationID, 0, len(c.directs))
	for cid := range c.directs {
		directs = append(directs, cid)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	sort.Slice(directs, func(i, j int) bool { return directs[i] < directs[j] })

	for _, rid := range rooms {
		if err := c.write(ws, core.JoinRoom(rid, c.opts.UserID, c.opts.DisplayName)); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("room", string(rid)).Msg("rejoin failed")
		}
	}
	for _, cid := range directs {
		if err := c.write(ws, core.JoinDirect(cid, c.opts.UserID)); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("conversation", string(cid)).Msg("direct rejoin failed")
		}
	}
}

func (c *Client) readLoop(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		t, err := core.PeekType(data)
		if err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("unreadable frame")
			continue
		}
		if t == core.EvError {
			log.Warn().Str("module", "client").RawJSON("frame", data).Msg("server error")
		}
		c.subs.emit(t, data)
	}
}

// Send writes one event on the current connection.
func (c *Client) Send(ev core.Inbound) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mu.Lock()
	ws := c.conn
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return c.write(ws, ev)
}

func (c *Client) write(ws *websocket.Conn, ev core.Inbound) error {
	f, err := core.Encode(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, f)
}

// sendOrDefer treats a missing connection as success: the joined set is
// replayed on the next connect.
func (c *Client) sendOrDefer(ev core.Inbound) error {
	if err := c.Send(ev); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (c *Client) JoinRoom(rid domain.RoomID) error {
	c.mu.Lock()
	c.rooms[rid] = struct{}{}
	c.mu.Unlock()
	return c.sendOrDefer(core.JoinRoom(rid, c.opts.UserID, c.opts.DisplayName))
}

func (c *Client) LeaveRoom(rid domain.RoomID) error {
	c.mu.Lock()
	delete(c.rooms, rid)
	c.mu.Unlock()
	return c.sendOrDefer(core.LeaveRoom(rid, c.opts.UserID, c.opts.DisplayName))
}

func (c *Client) JoinDirect(cid domain.ConversationID) error {
	c.mu.Lock()
	c.directs[cid] = struct{}{}
	c.mu.Unlock()
	return c.sendOrDefer(core.JoinDirect(cid, c.opts.UserID))
}

func (c *Client) LeaveDirect(cid domain.ConversationID) error {
	c.mu.Lock()
	delete(c.directs, cid)
	c.mu.Unlock()
	return c.sendOrDefer(core.LeaveDirect(cid, c.opts.UserID))
}

// Joined returns the rooms replayed on reconnect.
func (c *Client) Joined() []domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RoomID, 0, len(c.rooms))
	for rid := range c.rooms {
		out = append(out, rid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Client) SendMessage(rid domain.RoomID, tempID, content string) error {
	return c.Send(&core.SendMessage{RoomID: rid, TempID: tempID, Content: content})
}

func (c *Client) SendDirect(cid domain.ConversationID, tempID, content string) error {
	return c.Send(&core.SendDirect{ConversationID: cid, TempID: tempID, Content: content})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close drops the connection and releases every subscription. Safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closed)
		c.mu.Lock()
		ws := c.conn
		c.mu.Unlock()
		if ws != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = ws.Close()
		}
		c.subs.clear()
	})
}
