package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires the status token as "Authorization: Bearer <token>"
// or, for browser WebSocket clients, as the "token" query parameter. An empty
// token disables the check.
func AuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			provided, _ = strings.CutPrefix(header, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
