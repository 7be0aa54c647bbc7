package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/1-api-gateway/relaygw/internal/config"
	"github.com/1-api-gateway/relaygw/internal/ctxkey"
)

// requestID stamps every request with a correlation id (ctxkey.RequestId),
// generating one when the caller didn't supply its own, and echoes it
// back on the response header so a client can correlate logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ctxkey.RequestId)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxkey.RequestId, id)
		c.Header(ctxkey.RequestId, id)
		c.Next()
	}
}

// adminAuth gates the config CRUD and /metrics endpoints (spec.md §6)
// behind config.AdminToken when one is configured. An empty token
// disables the gate entirely, matching one-api's unconfigured-password
// behavior.
func adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AdminToken == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token != config.AdminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing admin token"})
			return
		}
		c.Next()
	}
}
