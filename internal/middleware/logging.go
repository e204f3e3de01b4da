package middleware

import (
	"time"

	"firewatch/internal/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs every request once it has been served.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Error("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		case status >= 400:
			log.Warning("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		default:
			log.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}
