package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sgpm-api/internal/service"
)

// Metrics records per-request latency and status. Unmatched routes share one
// label so probing random URLs cannot blow up metric cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
