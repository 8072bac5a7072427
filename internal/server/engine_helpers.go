package server

import (
	"dashsync-go/internal/config"
	mw "dashsync-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// applyStandardEngineSettings installs the middleware chain shared by every
// route of the status server.
func applyStandardEngineSettings(engine *gin.Engine, cfg *config.Config) {
	if cfg == nil || !cfg.Logging.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	_ = engine.SetTrustedProxies(nil)

	engine.Use(mw.Recovery(), mw.RequestID(), mw.Metrics(), mw.CORS(), mw.RequestLogger())
}

// BuildEngine wires every status route onto a fresh gin engine.
func BuildEngine(deps Dependencies, b *ViewBroadcaster) *gin.Engine {
	if deps.Config == nil {
		deps.Config = config.Default
	}
	engine := gin.New()
	applyStandardEngineSettings(engine, deps.Config())

	h := &statusHandler{deps: deps, broadcaster: b}
	engine.GET("/healthz", h.health)
	engine.GET("/metrics", mw.MetricsHandler)

	v1 := engine.Group("/v1", mw.AdminAuth(deps.Config))
	v1.GET("/view", h.view)
	v1.GET("/view/ws", h.viewStream)
	v1.GET("/channel", h.channel)
	v1.GET("/tasks", h.tasks)
	return engine
}
