package middleware

import (
	"net/http"
	"strings"

	"dashsync-go/internal/config"
	"dashsync-go/internal/netutil"

	"github.com/gin-gonic/gin"
)

// AdminAuth guards the status surface. With an admin key configured the
// caller must present it as "Authorization: Bearer <key>" or "X-API-Key".
// Without one, only loopback clients are admitted. cfg is consulted per
// request so reloaded keys apply immediately.
func AdminAuth(cfg func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := cfg()
		if !config.AdminKeyRequired(current) {
			ip := netutil.ExtractClientIP(c)
			if ip == nil || !ip.IsLoopback() {
				respondAuthError(c, http.StatusForbidden, "forbidden", "status surface is restricted to loopback clients")
				return
			}
			c.Set("principal", "loopback")
			c.Next()
			return
		}

		key := extractAdminKey(c)
		if key == "" {
			respondAuthError(c, http.StatusUnauthorized, "missing_api_key", "admin key not provided")
			return
		}
		if !config.CheckAdminKey(current, key) {
			respondAuthError(c, http.StatusUnauthorized, "invalid_api_key", "invalid admin key")
			return
		}
		c.Set("principal", "admin")
		c.Next()
	}
}

func extractAdminKey(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}

func respondAuthError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"code":    code,
		},
	})
}
