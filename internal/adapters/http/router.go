package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type RoomLister interface {
	Rooms() []core.RoomInfo
	Members(key domain.RoomKey) []core.MemberDTO
}

type Deps struct {
	Chat   *signal.ChatWSController
	Health Pinger
	Rooms  RoomLister
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := deps.Health.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")

	api.GET("/ws/chat/:peer", func(c *gin.Context) {
		deps.Chat.HandleChat(ctx, c)
	})

	if cfg.Mode == "debug" {
		// GET /api/rooms: live rooms in this process
		api.GET("/rooms", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"rooms": deps.Rooms.Rooms()})
		})

		// GET /api/rooms/:key/members: sessions joined to one room
		api.GET("/rooms/:key/members", func(c *gin.Context) {
			key := domain.RoomKey(c.Param("key"))
			if _, _, ok := key.Participants(); !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room key"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"members": deps.Rooms.Members(key)})
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Bool("metrics", cfg.MetricsEnabled).Msg("router setup")
	return r
}
