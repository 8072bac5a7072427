package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores keys under a prefix in Redis, optionally with a TTL.
type RedisKV struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisKV.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisKV connects and pings the server.
func NewRedisKV(ctx context.Context, opts RedisOptions) (*RedisKV, error) {
	if opts.Prefix == "" {
		opts.Prefix = "dashsync:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &RedisKV{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &ErrNotFound{Key: key}
		}
		return "", err
	}
	return v, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close closes the Redis connection pool.
func (r *RedisKV) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
