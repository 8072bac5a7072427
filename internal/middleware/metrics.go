package middleware

import (
	"time"

	"dashsync-go/internal/monitoring"

	"github.com/gin-gonic/gin"
)

// Metrics tracks per-route counters and a latency histogram.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		monitoring.HTTPInFlight.Inc()
		c.Next()
		monitoring.HTTPInFlight.Dec()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		sc := monitoring.StatusClass(c.Writer.Status())
		monitoring.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, sc).Inc()
		monitoring.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, sc).Observe(time.Since(start).Seconds())
	}
}
