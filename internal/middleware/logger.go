package middleware

import (
	"time"

	"dashsync-go/internal/logging"
	"dashsync-go/internal/netutil"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs HTTP requests
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		extras := log.Fields{
			"status":        status,
			"latency_ms":    logging.DurationMS(time.Since(start)),
			"user_agent":    c.Request.UserAgent(),
			"client_source": netutil.ClassifyClientSource(netutil.ExtractClientIP(c)),
		}
		if principal, ok := c.Get("principal"); ok {
			extras["principal"] = principal
		}
		if len(c.Errors) > 0 {
			extras["error"] = c.Errors.String()
		}
		entry := logging.WithReq(c, extras)
		switch {
		case status >= 500:
			entry.Error("http_request")
		case status >= 400:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
