package config

import (
	"strings"
	"time"
)

// applyEnv overlays DASHSYNC_* environment variables on cfg.
func applyEnv(cfg *Config) {
	applyBackendEnvVars(cfg)
	applyRealtimeEnvVars(cfg)
	applySyncEnvVars(cfg)
	applyStorageEnvVars(cfg)
	applyServerEnvVars(cfg)
	applyLoggingEnvVars(cfg)
	applyAuthEnvVars(cfg)
}

func applyBackendEnvVars(cfg *Config) {
	setStringFromEnv("BASE_URL", func(v string) { cfg.Backend.BaseURL = v })
	setStringFromEnv("PROXY_URL", func(v string) { cfg.Backend.ProxyURL = v })
	setDurationFromEnv("REQUEST_TIMEOUT", func(d time.Duration) { cfg.Backend.RequestTimeout = d })
	setFloatFromEnv("RATE_LIMIT_RPS", func(f float64) { cfg.Backend.RateLimitRPS = f })
	setIntFromEnv("RATE_LIMIT_BURST", func(n int) { cfg.Backend.RateLimitBurst = n })
}

func applyRealtimeEnvVars(cfg *Config) {
	setToggleFromEnv("REALTIME_DISABLED", func(b bool) { cfg.Realtime.Disabled = b })
	setStringFromEnv("REALTIME_URL", func(v string) { cfg.Realtime.URL = v })
	setDurationFromEnv("RECONNECT_DELAY", func(d time.Duration) { cfg.Realtime.ReconnectDelay = d })
	setDurationFromEnv("HANDSHAKE_TIMEOUT", func(d time.Duration) { cfg.Realtime.HandshakeTimeout = d })
	setToggleFromEnv("REALTIME_SEND_TOKEN", func(b bool) { cfg.Realtime.SendToken = b })
}

func applySyncEnvVars(cfg *Config) {
	setDurationFromEnv("REFRESH_INTERVAL", func(d time.Duration) { cfg.Sync.RefreshInterval = d })
	setStringFromEnv("ANALYTICS_PERIOD", func(v string) { cfg.Sync.AnalyticsPeriod = v })
}

func applyStorageEnvVars(cfg *Config) {
	setStringFromEnv("STORAGE_BACKEND", func(v string) { cfg.Storage.Backend = strings.ToLower(v) })
	setStringFromEnv("STORAGE_FILE", func(v string) { cfg.Storage.FilePath = v })
	setStringFromEnv("STORAGE_ENCRYPTION_KEY", func(v string) { cfg.Storage.EncryptionKey = v })
	setStringFromEnv("REDIS_ADDR", func(v string) { cfg.Storage.RedisAddr = v })
	setStringFromEnv("REDIS_PASSWORD", func(v string) { cfg.Storage.RedisPassword = v })
	setIntFromEnv("REDIS_DB", func(n int) { cfg.Storage.RedisDB = n })
	setStringFromEnv("REDIS_PREFIX", func(v string) { cfg.Storage.RedisPrefix = v })
	setDurationFromEnv("REDIS_TTL", func(d time.Duration) { cfg.Storage.RedisTTL = d })
}

func applyServerEnvVars(cfg *Config) {
	setStringFromEnv("LISTEN", func(v string) { cfg.Server.Listen = v })
	setStringFromEnv("ADMIN_KEY", func(v string) { cfg.Server.AdminKey = v })
	setStringFromEnv("ADMIN_KEY_HASH", func(v string) { cfg.Server.AdminKeyHash = v })
}

func applyLoggingEnvVars(cfg *Config) {
	setStringFromEnv("LOG_LEVEL", func(v string) { cfg.Logging.Level = v })
	setStringFromEnv("LOG_FORMAT", func(v string) { cfg.Logging.Format = v })
	setStringFromEnv("LOG_FILE", func(v string) { cfg.Logging.File = v })
	setToggleFromEnv("DEBUG", func(b bool) { cfg.Logging.Debug = b })
}

func applyAuthEnvVars(cfg *Config) {
	setStringFromEnv("EMAIL", func(v string) { cfg.Auth.Email = v })
	setStringFromEnv("PASSWORD", func(v string) { cfg.Auth.Password = v })
}
