package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"Matchmaking/internal/utils"
)

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		keyvals := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			utils.Error("http request", keyvals...)
		case status >= 400:
			utils.Warn("http request", keyvals...)
		default:
			utils.Debug("http request", keyvals...)
		}
	}
}
