package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dashsync-go/internal/events"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.Realtime.ReconnectDelay)
	require.Equal(t, 30*time.Second, cfg.Sync.RefreshInterval)
	require.Equal(t, "7d", cfg.Sync.AnalyticsPeriod)
	require.Equal(t, "file", cfg.Storage.Backend)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAMLFillsMissingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashsync.yaml")
	writeFile(t, path, `
backend:
  base_url: https://api.example.com/api
realtime:
  reconnect_delay: 2s
storage:
  backend: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/api", cfg.Backend.BaseURL)
	require.Equal(t, 2*time.Second, cfg.Realtime.ReconnectDelay)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashsync.json")
	writeFile(t, path, `{"backend":{"base_url":"http://127.0.0.1:9000"},"sync":{"analytics_period":"30d"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000", cfg.Backend.BaseURL)
	require.Equal(t, "30d", cfg.Sync.AnalyticsPeriod)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashsync.yaml")
	writeFile(t, path, "backend:\n  base_url: http://file.example\n")
	t.Setenv("DASHSYNC_BASE_URL", "http://env.example")
	t.Setenv("DASHSYNC_RECONNECT_DELAY", "7")
	t.Setenv("DASHSYNC_REFRESH_INTERVAL", "1m")
	t.Setenv("DASHSYNC_REALTIME_DISABLED", "yes")
	t.Setenv("DASHSYNC_STORAGE_BACKEND", "MEMORY")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://env.example", cfg.Backend.BaseURL)
	require.Equal(t, 7*time.Second, cfg.Realtime.ReconnectDelay)
	require.Equal(t, time.Minute, cfg.Sync.RefreshInterval)
	require.True(t, cfg.Realtime.Disabled)
	require.Equal(t, "memory", cfg.Storage.Backend)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"relative base url": func(c *Config) { c.Backend.BaseURL = "/api" },
		"http realtime url": func(c *Config) { c.Realtime.URL = "http://x/ws" },
		"redis without addr": func(c *Config) { c.Storage.Backend = "redis" },
		"unknown backend":   func(c *Config) { c.Storage.Backend = "mongo" },
		"unknown format":    func(c *Config) { c.Logging.Format = "xml" },
		"negative rps":      func(c *Config) { c.Backend.RateLimitRPS = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
	require.NoError(t, Validate(Default()))
}

func TestCheckAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := Default()
	require.False(t, AdminKeyRequired(cfg))
	cfg.Server.AdminKey = "plain"
	cfg.Server.AdminKeyHash = string(hash)
	require.True(t, AdminKeyRequired(cfg))

	require.True(t, CheckAdminKey(cfg, "plain"))
	require.True(t, CheckAdminKey(cfg, "hashed-secret"))
	require.False(t, CheckAdminKey(cfg, "wrong"))
	require.False(t, CheckAdminKey(cfg, ""))
	require.False(t, CheckAdminKey(nil, "plain"))
}

func TestManagerReloadNotifiesListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashsync.yaml")
	writeFile(t, path, "sync:\n  refresh_interval: 10s\n")

	m, err := NewManager(path)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, 10*time.Second, m.Get().Sync.RefreshInterval)

	hub := events.NewHub()
	published := make(chan ChangeEvent, 1)
	hub.Subscribe(events.TopicConfigUpdated, func(_ context.Context, ev events.Event) {
		if ce, ok := ev.Payload.(ChangeEvent); ok {
			published <- ce
		}
	})
	m.SetEventPublisher(hub)

	got := make(chan *Config, 4)
	m.OnChange(func(c *Config) { got <- c })

	writeFile(t, path, "sync:\n  refresh_interval: 20s\n")
	require.NoError(t, m.Reload())

	select {
	case c := <-got:
		require.Equal(t, 20*time.Second, c.Sync.RefreshInterval)
	case <-time.After(time.Second):
		t.Fatal("expected OnChange callback")
	}
	select {
	case ev := <-published:
		require.Equal(t, 20*time.Second, ev.Config.Sync.RefreshInterval)
		require.NotNil(t, ev.Previous)
		require.Equal(t, 10*time.Second, ev.Previous.Sync.RefreshInterval)
	case <-time.After(time.Second):
		t.Fatal("expected config.updated event")
	}
	require.Equal(t, 20*time.Second, m.Get().Sync.RefreshInterval)
}

func TestManagerKeepsConfigOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashsync.yaml")
	writeFile(t, path, "logging:\n  format: text\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	defer m.Close()

	writeFile(t, path, "logging:\n  format: xml\n")
	require.Error(t, m.Reload())
	require.Equal(t, "text", m.Get().Logging.Format)
}

func TestManagerMissingFileUsesDefaults(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, "", m.Path())
	require.NoError(t, m.Reload())
	require.Equal(t, "info", m.Get().Logging.Level)
}
