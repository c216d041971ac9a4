package middlewares

import "github.com/gin-gonic/gin"

// abort writes the same error envelope the handlers use.
func abort(c *gin.Context, status int, code, message string) {
	reqID, _ := c.Get(CtxRequestID)

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
		"error": gin.H{
			"code":      code,
			"requestId": reqID,
		},
	})
}
