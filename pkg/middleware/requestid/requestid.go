// Package requestid tags every request with a correlation ID. Inbound
// IDs from trusted proxies are kept; everything else gets a fresh one.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	header     = "X-Request-ID"
	contextKey = "request_id"

	// Inbound IDs longer than this are replaced rather than echoed,
	// keeping log fields bounded.
	maxInboundLen = 64
)

// Middleware assigns a request ID and echoes it in the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(header)
		if id == "" || len(id) > maxInboundLen {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(header, id)
		c.Next()
	}
}

// Value returns the request ID stored in the Gin context, or "".
func Value(c *gin.Context) string {
	if v, ok := c.Get(contextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
