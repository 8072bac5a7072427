package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery turns handler panics into a JSON 500.
func Recovery() gin.HandlerFunc {
	return RecoveryWithWriter(nil)
}

// RecoveryWithWriter is Recovery with an extra callback run after logging.
func RecoveryWithWriter(writer gin.RecoveryFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(log.Fields{
					"error":      err,
					"stack":      string(debug.Stack()),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"client_ip":  c.ClientIP(),
					"user_agent": c.Request.UserAgent(),
				}).Error("panic recovered")

				if writer != nil {
					writer(c, err)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"message": "Internal server error",
						"code":    "panic_recovered",
					},
				})
			}
		}()

		c.Next()
	}
}
