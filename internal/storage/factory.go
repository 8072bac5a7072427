package storage

import (
	"context"
	"strings"

	"dashsync-go/internal/config"

	log "github.com/sirupsen/logrus"
)

// Open builds the configured backend, wrapped with instrumentation. When the
// file or redis backend cannot be opened it logs and falls back to memory,
// so the agent still runs with a process-lifetime token.
func Open(ctx context.Context, cfg config.StorageConfig) KV {
	label := strings.ToLower(strings.TrimSpace(cfg.Backend))
	var (
		kv  KV
		err error
	)
	switch label {
	case "redis":
		kv, err = NewRedisKV(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.RedisTTL,
		})
	case "file":
		kv, err = NewFileKV(cfg.FilePath, cfg.EncryptionKey)
	default:
		label = "memory"
		kv = NewMemoryKV()
	}
	if err != nil {
		log.WithError(err).WithField("backend", label).Warn("storage backend unavailable, falling back to memory")
		label = "memory"
		kv = NewMemoryKV()
	}
	log.WithField("backend", label).Info("token storage ready")
	return WithInstrumentation(kv, label)
}
