package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"stayhub/realtime-service/utils"
)

// Logger logs each request with method, path, status and duration
func Logger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"remote", c.ClientIP(),
		)
	}
}
