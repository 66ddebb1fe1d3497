package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"signbridge-server/internal/logger"
)

// RequestLogger logs every request once it has been handled, along with
// any errors handlers attached to the context.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		userID, _ := GetUserIDFromContext(c)
		for _, e := range c.Errors {
			log.WithComponent("http").WithError(e.Err).WithField("path", path).Error("request failed")
		}
		log.HTTPRequest(c.Request.Method, path, c.ClientIP(), c.Writer.Status(), time.Since(start), userID)
	}
}
