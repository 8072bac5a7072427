package netutil

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ExtractClientIP returns the client IP of a status server request.
func ExtractClientIP(c *gin.Context) net.IP {
	if c == nil {
		return nil
	}
	return ExtractIPFromRequest(c.Request)
}

// ExtractIPFromRequest uses the socket peer address. Forwarding headers are
// ignored.
func ExtractIPFromRequest(r *http.Request) net.IP {
	if r == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

// ClassifyClientSource categorizes the IP origin.
func ClassifyClientSource(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	if ip.IsLoopback() {
		return "loopback"
	}
	if IsDockerBridgeIP(ip) {
		return "docker_bridge"
	}
	if ip.IsPrivate() {
		return "private"
	}
	return "public"
}

// IsDockerBridgeIP detects Docker default bridge range.
func IsDockerBridgeIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 172 && ip4[1] == 17
	}
	return false
}
