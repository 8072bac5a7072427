package config

import (
	"os"
	"path/filepath"

	"dashsync-go/internal/constants"
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:               "http://localhost:8000/api",
			RequestTimeout:        constants.DefaultRequestTimeout,
			DialTimeout:           constants.DefaultDialTimeout,
			TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
			ResponseHeaderTimeout: constants.DefaultResponseHeaderTimeout,
			RateLimitBurst:        1,
		},
		Realtime: RealtimeConfig{
			ReconnectDelay:   constants.DefaultReconnectDelay,
			HandshakeTimeout: constants.DefaultHandshakeTimeout,
		},
		Sync: SyncConfig{
			RefreshInterval: constants.DefaultRefreshInterval,
			AnalyticsPeriod: constants.DefaultAnalyticsPeriod,
		},
		Storage: StorageConfig{
			Backend:     "file",
			FilePath:    defaultStatePath(),
			RedisPrefix: "dashsync:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = def.Backend.BaseURL
	}
	if cfg.Backend.RequestTimeout <= 0 {
		cfg.Backend.RequestTimeout = def.Backend.RequestTimeout
	}
	if cfg.Backend.DialTimeout <= 0 {
		cfg.Backend.DialTimeout = def.Backend.DialTimeout
	}
	if cfg.Backend.TLSHandshakeTimeout <= 0 {
		cfg.Backend.TLSHandshakeTimeout = def.Backend.TLSHandshakeTimeout
	}
	if cfg.Backend.ResponseHeaderTimeout <= 0 {
		cfg.Backend.ResponseHeaderTimeout = def.Backend.ResponseHeaderTimeout
	}
	if cfg.Backend.RateLimitBurst <= 0 {
		cfg.Backend.RateLimitBurst = def.Backend.RateLimitBurst
	}
	if cfg.Realtime.ReconnectDelay <= 0 {
		cfg.Realtime.ReconnectDelay = def.Realtime.ReconnectDelay
	}
	if cfg.Realtime.HandshakeTimeout <= 0 {
		cfg.Realtime.HandshakeTimeout = def.Realtime.HandshakeTimeout
	}
	if cfg.Sync.RefreshInterval <= 0 {
		cfg.Sync.RefreshInterval = def.Sync.RefreshInterval
	}
	if cfg.Sync.AnalyticsPeriod == "" {
		cfg.Sync.AnalyticsPeriod = def.Sync.AnalyticsPeriod
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.FilePath == "" {
		cfg.Storage.FilePath = def.Storage.FilePath
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = def.Storage.RedisPrefix
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "dashsync", "state.json")
	}
	return filepath.Join(".dashsync", "state.json")
}
