package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guidexpert/counsellor-api/internal/service"
)

// Metrics records request duration and count per route.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
