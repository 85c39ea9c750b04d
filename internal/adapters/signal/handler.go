package signal

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ChatWSController upgrades GET /api/ws/chat/:peer into a connection session.
type ChatWSController struct {
	deps     app.SessionDeps
	opts     Options
	upgrader websocket.Upgrader
}

func NewChatWSController(deps app.SessionDeps, opts Options) *ChatWSController {
	opts = opts.withDefaults()
	return &ChatWSController{
		deps: deps,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(opts.AllowedOrigins) == 0 {
					return true
				}
				return lo.Contains(opts.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleChat blocks for the lifetime of the connection. ctx is the server
// context; cancelling it closes every session.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	sess := app.NewSession(sid, ctl.deps)

	member, err := sess.Admit(c.Request, domain.ParticipantID(c.Param("peer")))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("connection rejected")
		c.AbortWithStatusJSON(status, gin.H{"error": domain.Reason(err)})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sess.Abort()
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(member.Room)).
		Str("participant", string(member.Principal.ID)).Msg("new WS connection")

	conn := NewWsSignalConn(ws, ctl.opts)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.writePump(ctx)

	if err := sess.Run(ctx, conn); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("session ended with error")
	}
}
