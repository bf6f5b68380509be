package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Authorizer decides room access. It runs on the connection goroutine.
type Authorizer interface {
	CanJoin(ctx context.Context, rid domain.RoomID, uid domain.UserID) (bool, error)
}

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	RateMessages int
	RateInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.RateMessages <= 0 {
		o.RateMessages = 10
	}
	if o.RateInterval <= 0 {
		o.RateInterval = 5 * time.Second
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Auth    Authorizer
	Limiter *RoomRateLimiter

	opts Options
}

func NewSignalWSController(o *orch.Orchestrator, auth Authorizer, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:    o,
		Auth:    auth,
		Limiter: NewRoomRateLimiter(opts.RateMessages, opts.RateInterval),
		opts:    opts,
	}
}

// WsSignalConn implements core.SignalConnection over one websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	tid  domain.TransportID

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	tid := domain.TransportID(uuid.NewString())
	log.Info().Str("module", "signal").Str("tid", string(tid)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
		tid:  tid,
	}
	if err := ctl.Orch.Connect(tid, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("tid", string(tid)).Msg("coordinator unavailable")
		conn.Close()
		return
	}

	id := sessionIdentity(c)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, id)
}
