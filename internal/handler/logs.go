package handler

import (
	"net/http"
	"os"

	"firewatch/internal/logger"

	"github.com/gin-gonic/gin"
)

// ShowLogsHandler serves the log file as text/plain.
func ShowLogsHandler(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filePath := logger.LogFile()
		if filePath == "" {
			c.String(http.StatusNotFound, "File logging is disabled")
			return
		}
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			c.String(http.StatusNotFound, "Log file not found: %s", filePath)
			return
		}

		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.File(filePath)
	}
}

// ClearLogsHandler truncates the log file.
func ClearLogsHandler(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := logger.CleanLogs(); err != nil {
			logger.Error("Failed to clear logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear logs"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
