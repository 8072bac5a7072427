package config

import "time"

// Config is the root configuration, grouped by functional domain.
type Config struct {
	Backend  BackendConfig  `yaml:"backend" json:"backend"`
	Realtime RealtimeConfig `yaml:"realtime" json:"realtime"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
}

// BackendConfig describes the HTTP API the client talks to.
type BackendConfig struct {
	BaseURL               string        `yaml:"base_url" json:"base_url"`
	RequestTimeout        time.Duration `yaml:"request_timeout" json:"request_timeout"`
	DialTimeout           time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout" json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" json:"response_header_timeout"`
	ProxyURL              string        `yaml:"proxy_url" json:"proxy_url"`
	// RateLimitRPS enables a client-side limiter when > 0.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// RealtimeConfig controls the push channel.
type RealtimeConfig struct {
	Disabled         bool          `yaml:"disabled" json:"disabled"`
	URL              string        `yaml:"url" json:"url"` // derived from backend.base_url when empty
	ReconnectDelay   time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	SendToken        bool          `yaml:"send_token" json:"send_token"`
}

// SyncConfig controls the dashboard synchronizer.
type SyncConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	AnalyticsPeriod string        `yaml:"analytics_period" json:"analytics_period"`
}

// StorageConfig selects the durable key-value backend for the bearer token.
type StorageConfig struct {
	Backend       string        `yaml:"backend" json:"backend"` // memory, file, redis
	FilePath      string        `yaml:"file_path" json:"file_path"`
	EncryptionKey string        `yaml:"encryption_key" json:"encryption_key"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix" json:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl" json:"redis_ttl"`
}

// ServerConfig controls the local status surface.
type ServerConfig struct {
	Listen       string `yaml:"listen" json:"listen"` // empty disables the server
	AdminKey     string `yaml:"admin_key" json:"admin_key"`
	AdminKeyHash string `yaml:"admin_key_hash" json:"admin_key_hash"`
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json or text
	File   string `yaml:"file" json:"file"`
	Debug  bool   `yaml:"debug" json:"debug"`
}

// AuthConfig carries agent login credentials. Leave empty to reuse a stored token.
type AuthConfig struct {
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
}
