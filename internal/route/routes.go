package route

import (
	"firewatch/internal/config"
	"firewatch/internal/handler"
	"firewatch/internal/logger"
	"firewatch/internal/middleware"
	"firewatch/internal/service/websocket"

	"github.com/gin-gonic/gin"
)

// SetupRoutes builds the status server. /healthz is public; everything under
// /api needs the status token.
func SetupRoutes(status handler.StatusProvider, hub *websocket.HubService, cfg *config.Config, logger *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	r.GET("/healthz", handler.HealthHandler)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.StatusToken))
	{
		api.GET("/status", handler.StatusHandler(status))
		api.GET("/view", handler.ViewWebsocketHandler(hub, logger))
		api.GET("/logs", handler.ShowLogsHandler(logger))
		api.DELETE("/logs", handler.ClearLogsHandler(logger))
	}

	return r
}
