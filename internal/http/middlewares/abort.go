package middlewares

import "github.com/gin-gonic/gin"

// abortWithError stops the chain with the same body shape handlers use:
// the message under "error" and the machine code beside it.
func abortWithError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"error": message,
		"code":  code,
	}
	if id := c.GetString(CtxRequestID); id != "" {
		body["requestId"] = id
	}
	c.AbortWithStatusJSON(status, body)
}
