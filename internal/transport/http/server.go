package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat-server/internal/auth"
	"github.com/vovakirdan/relaychat-server/internal/config"
	"github.com/vovakirdan/relaychat-server/internal/core"
	"github.com/vovakirdan/relaychat-server/internal/store"
)

// NewServer builds the HTTP server: health, WebSocket and REST routes behind CORS.
// presence may differ from st when presence records live outside the chat database.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	st store.Store,
	presence store.PresenceStore,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	wsHandler := NewWSHandler(hub, authService, WSOptionsFromConfig(cfg), logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, hub, logger)
	presenceHandlers := NewPresenceHandlers(st, presence, hub, logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		{
			protected.GET("/rooms", roomHandlers.ListInbox)
			protected.POST("/rooms", roomHandlers.CreateRoom)
			protected.POST("/rooms/direct", roomHandlers.CreateDirectRoom)
			protected.GET("/rooms/:id/messages", roomHandlers.ListMessages)
			protected.POST("/rooms/:id/read", roomHandlers.MarkRead)
			protected.GET("/users/:id/presence", presenceHandlers.GetPresence)
		}
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           corsHandler(cfg.AllowedOrigins).Handler(router),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	})
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
