package server

import (
	"net/http"
	"net/url"
	"strings"

	"dashsync-go/internal/logging"
	"dashsync-go/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type statusHandler struct {
	deps        Dependencies
	broadcaster *ViewBroadcaster
}

func (h *statusHandler) sessionLabel(c *gin.Context) string {
	if h.deps.Session == nil {
		return "unknown"
	}
	if _, ok := h.deps.Session.Get(c.Request.Context()); ok {
		return "active"
	}
	if h.deps.Session.Expired() {
		return "expired"
	}
	return "none"
}

func (h *statusHandler) channelState() string {
	if h.deps.Channel == nil {
		return "disabled"
	}
	return h.deps.Channel.State().String()
}

func (h *statusHandler) health(c *gin.Context) {
	running := h.deps.View != nil && h.deps.View.Running()
	session := h.sessionLabel(c)
	channel := h.channelState()

	status := "ok"
	if !running || session != "active" || (channel != "connected" && channel != "disabled") {
		status = "degraded"
	}
	body := gin.H{
		"status":        status,
		"channel_state": channel,
		"session":       session,
		"synchronizing": running,
	}
	if h.deps.Tasks != nil {
		body["tasks"] = h.deps.Tasks.GetStats()
	}
	c.JSON(http.StatusOK, body)
}

func (h *statusHandler) view(c *gin.Context) {
	if h.deps.View == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": "synchronizer not configured", "code": "unavailable"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"running": h.deps.View.Running(),
		"view":    h.deps.View.View(),
	})
}

func (h *statusHandler) channel(c *gin.Context) {
	if h.deps.Channel == nil {
		c.JSON(http.StatusOK, realtime.Stats{State: "disabled"})
		return
	}
	c.JSON(http.StatusOK, h.deps.Channel.Stats())
}

func (h *statusHandler) tasks(c *gin.Context) {
	if h.deps.Tasks == nil {
		c.JSON(http.StatusOK, gin.H{"tasks": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats": h.deps.Tasks.GetStats(),
		"tasks": h.deps.Tasks.ListTasks(),
	})
}

var upgrader = websocket.Upgrader{CheckOrigin: sameOrigin}

// sameOrigin admits non-browser clients and pages served from the same host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (h *statusHandler) viewStream(c *gin.Context) {
	if !h.broadcaster.Accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": "maximum stream connections reached", "code": "stream_full"}})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WithReq(c, nil).WithError(err).Debug("view stream upgrade failed")
		return
	}
	if err := h.broadcaster.Serve(conn); err != nil {
		logging.WithReq(c, nil).WithError(err).Debug("view stream ended")
	}
}
