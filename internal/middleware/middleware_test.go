package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dashsync-go/internal/config"
	"dashsync-go/internal/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = c.GetString("request_id")
		c.Status(http.StatusOK)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = serve(r, req)
	require.Equal(t, "abc-123", seen)
	require.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/fail", func(c *gin.Context) { c.String(http.StatusBadGateway, "nope") })

	require.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Code)
	require.Equal(t, http.StatusBadGateway, serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil)).Code)
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	var recovered any
	r := gin.New()
	r.Use(RecoveryWithWriter(func(c *gin.Context, err any) { recovered = err }))
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "panic_recovered")
	require.Equal(t, "kaboom", recovered)
}

func TestMetricsCountsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/v1/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := monitoring.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/things/:id", "2xx")
	before := testutil.ToFloat64(counter)
	serve(r, httptest.NewRequest(http.MethodGet, "/v1/things/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/v1/things/2", nil))
	require.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	monitoring.SessionExpiredTotal.Add(0)
	r := gin.New()
	r.GET("/metrics", MetricsHandler)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "dashsync_session_expired_total")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/v1/view", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/view", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, httptest.NewRequest(http.MethodOptions, "/v1/view", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	newRouter := func(cfg *config.Config) *gin.Engine {
		r := gin.New()
		r.Use(AdminAuth(func() *config.Config { return cfg }))
		r.GET("/v1/view", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("principal")) })
		return r
	}
	request := func(remote string, headers map[string]string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/v1/view", nil)
		req.RemoteAddr = remote
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req
	}

	t.Run("no key admits loopback only", func(t *testing.T) {
		r := newRouter(config.Default())
		w := serve(r, request("127.0.0.1:4000", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "loopback", w.Body.String())

		w = serve(r, request("10.1.2.3:4000", map[string]string{"X-Forwarded-For": "127.0.0.1"}))
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("plain key via bearer or header", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.AdminKey = "s3cret"
		r := newRouter(cfg)

		require.Equal(t, http.StatusUnauthorized, serve(r, request("127.0.0.1:1", nil)).Code)
		require.Equal(t, http.StatusUnauthorized, serve(r, request("10.0.0.1:1", map[string]string{"X-API-Key": "wrong"})).Code)

		w := serve(r, request("10.0.0.1:1", map[string]string{"Authorization": "Bearer s3cret"}))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "admin", w.Body.String())
		require.Equal(t, http.StatusOK, serve(r, request("10.0.0.1:1", map[string]string{"X-API-Key": "s3cret"})).Code)
	})

	t.Run("bcrypt hash", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.AdminKeyHash = string(hash)
		r := newRouter(cfg)

		w := serve(r, request("10.0.0.1:1", map[string]string{"authorization": "bearer hashed-secret"}))
		require.Equal(t, http.StatusOK, w.Code)
		w = serve(r, request("10.0.0.1:1", map[string]string{"X-API-Key": "nope"}))
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.True(t, strings.Contains(w.Body.String(), "invalid_api_key"))
	})
}
