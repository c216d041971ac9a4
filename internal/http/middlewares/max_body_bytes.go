package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps request bodies. A declared Content-Length over the cap
// is refused up front; chunked bodies fail later when BindJSON reads past it.
func MaxBodyBytes(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}

		if c.Request.ContentLength > max {
			abort(c, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large")
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}
