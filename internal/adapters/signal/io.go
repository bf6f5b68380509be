package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("tid", string(c.tid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("tid", string(c.tid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("tid", string(c.tid)).Msg("ping failed")
				return
			}
		}
	}
}

// readPump owns the connection's identity: the user registered on this
// socket, used for rate limiting and room authorization.
func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn, id *identity) {
	defer func() {
		log.Info().Str("module", "signal").Str("tid", string(c.tid)).Msg("readPump closing")
		c.Close()
		if err := ctl.Orch.Disconnect(c.tid); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("tid", string(c.tid)).Msg("disconnect not delivered")
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	if id != nil {
		ctl.dispatch(ctx, c, id, id.register())
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("tid", string(c.tid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))

		ev, err := core.Decode(data)
		if err != nil {
			code := core.ErrBadPayload.Error()
			if errors.Is(err, core.ErrUnknownEvent) {
				code = core.ErrUnknownEvent.Error()
			}
			log.Debug().Err(err).Str("module", "signal").Str("tid", string(c.tid)).Msg("rejected frame")
			ctl.sendError(c, code, err.Error())
			continue
		}
		if id == nil {
			id = &identity{}
		}
		ctl.dispatch(ctx, c, id, ev)
	}
}

func (ctl *SignalWSController) dispatch(ctx context.Context, c *WsSignalConn, id *identity, ev core.Inbound) {
	switch e := ev.(type) {
	case *core.RegisterIdentity:
		id.remember(e)
	case *core.SendMessage, *core.SendDirect:
		if id.userID != "" && !ctl.Limiter.Allow(id.userID) {
			ctl.sendError(c, "rate_limited", string(ev.Type()))
			return
		}
	case *core.RoomPresence:
		if e.Type() == core.EvJoinRoom && !ctl.authorizeJoin(ctx, c, e) {
			return
		}
	}
	if err := ctl.Orch.Dispatch(c.tid, ev); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("tid", string(c.tid)).Msg("dispatch failed")
	}
}
