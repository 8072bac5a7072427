package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate reports the first invalid field in cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Realtime.URL != "" {
		ru, err := url.Parse(cfg.Realtime.URL)
		if err != nil || (ru.Scheme != "ws" && ru.Scheme != "wss") {
			return fmt.Errorf("realtime.url must use ws or wss, got %q", cfg.Realtime.URL)
		}
	}
	if cfg.Backend.RateLimitRPS < 0 {
		return errors.New("backend.rate_limit_rps must not be negative")
	}
	switch strings.ToLower(cfg.Storage.Backend) {
	case "memory", "file":
	case "redis":
		if cfg.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging.format %q", cfg.Logging.Format)
	}
	return nil
}
