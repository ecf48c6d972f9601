package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/utils"
)

const (
	HeaderInternalKey = "X-Internal-API-Key"
	internalPrefix    = "/internal/"
)

// InternalKey rejects requests under /internal/ whose X-Internal-API-Key does
// not equal key. With an empty key every internal request is rejected.
func InternalKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, internalPrefix) {
			c.Next()
			return
		}
		got := c.GetHeader(HeaderInternalKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			utils.Warn("internal key rejected", "path", c.Request.URL.Path, "ip", c.ClientIP())
			apierr.Respond(c, apierr.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
