package signal

import (
	"context"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/rs/zerolog/log"
)

const authTimeout = 3 * time.Second

// authorizeJoin asks the membership collaborator before the join reaches the
// coordinator. Lookup errors deny the join.
func (ctl *SignalWSController) authorizeJoin(ctx context.Context, c *WsSignalConn, e *core.RoomPresence) bool {
	if ctl.Auth == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	ok, err := ctl.Auth.CanJoin(ctx, e.RoomID, e.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(e.RoomID)).Str("user", string(e.UserID)).Msg("room access lookup")
		ctl.sendError(c, "forbidden", "room access unavailable")
		return false
	}
	if !ok {
		log.Info().Str("module", "signal").Str("room", string(e.RoomID)).Str("user", string(e.UserID)).Msg("join denied")
		ctl.sendError(c, "forbidden", "not allowed in "+string(e.RoomID))
		return false
	}
	return true
}
