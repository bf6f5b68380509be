package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("coordinator stopped")

// Archive receives records after fan-out. Implementations must not block.
type Archive interface {
	AppendMessage(domain.ChatMessage)
	AppendEdit(domain.MessageEdit)
	AppendReaction(domain.Reaction)
}

// Orchestrator is the single writer of the registry, presence, direct
// channels and call table. Connection goroutines only reach it through
// submitted commands, each applied to completion before the next.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.Presence
	Direct   *app.DirectChannels
	Calls    *app.CallTable
	Policy   app.Policy
	Archive  Archive

	now   func() time.Time
	newID func() string
	cmds  chan command
	done  chan struct{}
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithIDs(newID func() string) Option { return func(o *Orchestrator) { o.newID = newID } }

func WithArchive(a Archive) Option { return func(o *Orchestrator) { o.Archive = a } }

func WithPolicy(p app.Policy) Option { return func(o *Orchestrator) { o.Policy = p } }

func WithQueue(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.cmds = make(chan command, n)
		}
	}
}

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Registry: app.NewRegistry(),
		Direct:   app.NewDirectChannels(),
		Calls:    app.NewCallTable(),
		Policy:   app.SimplePolicy{},
		now:      time.Now,
		newID:    newUUID,
		cmds:     make(chan command, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.Rooms = app.NewPresence(o.now)
	return o
}

type command interface {
	apply(o *Orchestrator)
}

type connectCmd struct {
	tid  domain.TransportID
	conn core.SignalConnection
}

type disconnectCmd struct {
	tid domain.TransportID
}

type eventCmd struct {
	tid domain.TransportID
	ev  core.Inbound
}

type queryCmd struct {
	fn   func(o *Orchestrator)
	done chan struct{}
}

func (c connectCmd) apply(o *Orchestrator)    { o.connect(c.tid, c.conn) }
func (c disconnectCmd) apply(o *Orchestrator) { o.disconnect(c.tid) }
func (c eventCmd) apply(o *Orchestrator)      { o.handle(c.tid, c.ev) }
func (c queryCmd) apply(o *Orchestrator) {
	c.fn(o)
	close(c.done)
}

// Run drains commands until ctx is done. Pending commands are discarded.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	log.Info().Str("module", "orch").Msg("coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("coordinator stopped")
			return nil
		case c := <-o.cmds:
			c.apply(o)
		}
	}
}

// Done is closed once Run has returned.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) submit(c command) error {
	select {
	case o.cmds <- c:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// Connect attaches a transport so it receives global room summaries.
func (o *Orchestrator) Connect(tid domain.TransportID, conn core.SignalConnection) error {
	return o.submit(connectCmd{tid: tid, conn: conn})
}

// Disconnect runs the cleanup cascade for tid.
func (o *Orchestrator) Disconnect(tid domain.TransportID) error {
	return o.submit(disconnectCmd{tid: tid})
}

// Dispatch hands one validated client event to the loop.
func (o *Orchestrator) Dispatch(tid domain.TransportID, ev core.Inbound) error {
	return o.submit(eventCmd{tid: tid, ev: ev})
}

// Query runs fn inside the loop and waits for it.
func (o *Orchestrator) Query(ctx context.Context, fn func(o *Orchestrator)) error {
	c := queryCmd{fn: fn, done: make(chan struct{})}
	select {
	case o.cmds <- c:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) RoomSummaries(ctx context.Context) ([]domain.RoomSummary, error) {
	var out []domain.RoomSummary
	err := o.Query(ctx, func(o *Orchestrator) { out = o.Rooms.Summaries() })
	return out, err
}

func (o *Orchestrator) RoomMembers(ctx context.Context, rid domain.RoomID) ([]domain.User, error) {
	var out []domain.User
	err := o.Query(ctx, func(o *Orchestrator) { out = o.Rooms.RosterSnapshot(rid) })
	return out, err
}

func (o *Orchestrator) connect(tid domain.TransportID, conn core.SignalConnection) {
	o.Registry.Attach(tid, conn, o.now())
	log.Info().Str("module", "orch").Str("tid", string(tid)).Int("transports", o.Registry.Len()).Msg("transport connected")
	for _, s := range o.Rooms.Summaries() {
		o.sendTo(tid, core.RoomSummary{Head: core.Head{Type: core.EvRoomSummary}, RoomSummary: s})
	}
}

// disconnect applies registry, presence, direct and call cleanup in one
// iteration so no other command observes a half-removed transport.
func (o *Orchestrator) disconnect(tid domain.TransportID) {
	if _, ok := o.Registry.Conn(tid); !ok {
		return
	}
	uid, current := o.Registry.Detach(tid)
	log.Info().Str("module", "orch").Str("tid", string(tid)).Str("user", string(uid)).Msg("transport disconnected")
	if uid == "" {
		o.Direct.Disconnect(tid)
		return
	}
	o.retract(uid, tid, current)
}

// retract removes what uid holds through tid: room presence, direct
// subscriptions and, when tid is uid's current transport, the active call.
func (o *Orchestrator) retract(uid domain.UserID, tid domain.TransportID, current bool) {
	for _, rid := range o.Rooms.Disconnect(uid, tid) {
		o.publishRoster(rid)
	}
	o.Direct.Disconnect(tid)
	if !current {
		return
	}
	for _, s := range o.Calls.Disconnect(uid) {
		peer, _ := s.Peer(uid)
		o.sendToUser(peer, core.NewCallNotice(core.EvCallEnded, &s, core.ReasonPeerDisconnected))
	}
}

func (o *Orchestrator) handle(tid domain.TransportID, ev core.Inbound) {
	conn, ok := o.Registry.Conn(tid)
	if !ok {
		log.Debug().Str("module", "orch").Str("tid", string(tid)).Str("event", string(ev.Type())).Msg("event from detached transport")
		return
	}
	switch e := ev.(type) {
	case *core.Ping:
		o.sendTo(tid, core.Pong{Head: core.Head{Type: core.EvPong}})
		return
	case *core.RegisterIdentity:
		o.register(tid, conn, e)
		return
	}

	uid, ok := o.Registry.Resolve(tid)
	if !ok {
		o.reject(tid, "not_registered", string(ev.Type()))
		return
	}
	switch e := ev.(type) {
	case *core.RoomPresence:
		o.onRoomPresence(tid, uid, e)
	case *core.SendMessage:
		o.onSendMessage(tid, uid, e)
	case *core.EditMessage:
		o.onEditMessage(tid, uid, e)
	case *core.ReactMessage:
		o.onReactMessage(tid, uid, e)
	case *core.Typing:
		o.onTyping(uid, e)
	case *core.DirectPresence:
		o.onDirectPresence(tid, uid, e)
	case *core.SendDirect:
		o.onSendDirect(tid, uid, e)
	case *core.CallInitiate:
		o.onCallInitiate(tid, uid, e)
	case *core.CallAnswer:
		o.onCallAnswer(uid, e)
	case *core.CallSignal:
		o.onCallSignal(uid, e)
	case *core.CallEnd:
		o.onCallEnd(uid, e)
	default:
		o.reject(tid, core.ErrUnknownEvent.Error(), string(ev.Type()))
	}
}

// register binds the identity. A transport that switches identity first
// gives up everything the previous user held through it.
func (o *Orchestrator) register(tid domain.TransportID, conn core.SignalConnection, e *core.RegisterIdentity) {
	prev, bound := o.Registry.Resolve(tid)
	switched := bound && prev != e.UserID
	var wasCurrent bool
	if switched {
		ctid, _, ok := o.Registry.ConnOf(prev)
		wasCurrent = ok && ctid == tid
	}
	o.Registry.Register(e.UserID, tid, conn, o.now())
	if switched {
		log.Info().Str("module", "orch").Str("tid", string(tid)).Str("from", string(prev)).Str("to", string(e.UserID)).Msg("identity switched")
		o.retract(prev, tid, wasCurrent)
	}
	o.sendTo(tid, core.Registered{
		Head:        core.Head{Type: core.EvRegistered},
		UserID:      e.UserID,
		DisplayName: e.DisplayName,
		TransportID: tid,
	})
}

func (o *Orchestrator) reject(tid domain.TransportID, code, detail string) {
	log.Debug().Str("module", "orch").Str("tid", string(tid)).Str("code", code).Str("detail", detail).Msg("rejected event")
	o.sendTo(tid, core.NewError(code, detail))
}
