package signal

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Session keys written by POST /api/session.
const (
	SessionUserID      = "user_id"
	SessionDisplayName = "display_name"
)

type identity struct {
	userID      domain.UserID
	displayName string
}

// sessionIdentity returns the identity stored in the cookie session, if any.
func sessionIdentity(c *gin.Context) *identity {
	sess := sessions.Default(c)
	raw, _ := sess.Get(SessionUserID).(string)
	if raw == "" {
		return nil
	}
	name, _ := sess.Get(SessionDisplayName).(string)
	u, err := domain.NewUser(raw, name)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("ignoring invalid session identity")
		return nil
	}
	return &identity{userID: u.ID, displayName: u.DisplayName}
}

func (id *identity) register() *core.RegisterIdentity {
	return &core.RegisterIdentity{UserID: id.userID, DisplayName: id.displayName}
}

func (id *identity) remember(e *core.RegisterIdentity) {
	id.userID, id.displayName = e.UserID, e.DisplayName
}
