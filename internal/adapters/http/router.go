package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/adapters/signal"
	"github.com/sprintdeck/pokerd/internal/app"
	"github.com/sprintdeck/pokerd/internal/config"
)

// ClientTokenMiddleware hands every browser an opaque token cookie. It
// is log-correlation only: identity inside a room always comes from the
// server-minted connection ID.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, registry *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": registry.Len()})
	})

	api := r.Group("/api")

	// The join page probes the code before opening the event channel.
	api.GET("/rooms/:code", func(c *gin.Context) {
		if _, err := registry.Get(c.Param("code")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"exists": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"exists": true})
	})

	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
