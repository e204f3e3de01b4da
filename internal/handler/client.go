package handler

import (
	"net/http"

	"firewatch/internal/logger"
	"firewatch/internal/service/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers viewers with the hub so they receive state
// changes and alerts. Incoming messages are discarded.
func ViewWebsocketHandler(hub *websocket.HubService, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		connection, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		ctx := c.Request.Context()
		if !hub.Register(ctx, connection) {
			connection.Close()
			return
		}
		defer hub.Unregister(ctx, connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
					logger.Debug("Viewer disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
