package signal

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/rs/zerolog/log"
)

// sendError answers the sender directly, bypassing the coordinator.
func (ctl *SignalWSController) sendError(c *WsSignalConn, code, detail string) {
	ctl.send(c, core.NewError(code, detail))
}

func (ctl *SignalWSController) send(c *WsSignalConn, v core.Outbound) {
	f, err := core.EncodeOut(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := c.TrySend(f); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("tid", string(c.tid)).Msg("send dropped")
	}
}
