package handler

import (
	"net/http"

	"firewatch/internal/service"

	"github.com/gin-gonic/gin"
)

type StatusProvider interface {
	Status() service.Status
}

// HealthHandler answers liveness probes.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusHandler returns pipeline state and counters.
func StatusHandler(provider StatusProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.Status())
	}
}
