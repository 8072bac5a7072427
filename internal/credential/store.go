package credential

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"dashsync-go/internal/constants"
	"dashsync-go/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Origin reports where the current token was obtained.
type Origin int

const (
	OriginNone Origin = iota
	OriginMemory
	OriginDurable
)

func (o Origin) String() string {
	switch o {
	case OriginMemory:
		return "memory"
	case OriginDurable:
		return "durable"
	default:
		return "none"
	}
}

// Store holds the single bearer token, mirrored to durable storage.
// Storage failures are logged and treated as an absent token.
type Store struct {
	kv  storage.KV
	key string

	mu      sync.Mutex
	token   string
	origin  Origin
	loaded  bool // durable load attempted
	cleared bool // no durable reload until the next Set

	// armed is true while the current credential has not been invalidated.
	armed atomic.Bool
}

// Option customizes a Store.
type Option func(*Store)

// WithKey overrides the durable key (default "auth_token").
func WithKey(key string) Option {
	return func(s *Store) {
		if key = strings.TrimSpace(key); key != "" {
			s.key = key
		}
	}
}

// NewStore returns a Store backed by kv. A nil kv keeps the token in memory only.
func NewStore(kv storage.KV, opts ...Option) *Store {
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	s := &Store{kv: kv, key: constants.TokenKey}
	for _, opt := range opts {
		opt(s)
	}
	s.armed.Store(true)
	return s
}

// Set replaces the token in memory and durable storage.
func (s *Store) Set(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.origin = OriginMemory
	s.loaded = true
	s.cleared = false
	s.armed.Store(true)
	if err := s.kv.Set(ctx, s.key, token); err != nil {
		log.WithError(err).WithField("key", s.key).Warn("failed to persist token")
	}
}

// Get returns the token, loading it from durable storage at most once.
func (s *Store) Get(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, true
	}
	if s.loaded || s.cleared {
		return "", false
	}
	s.loaded = true
	v, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !storage.IsNotFound(err) {
			log.WithError(err).WithField("key", s.key).Warn("failed to load token")
		}
		return "", false
	}
	if v == "" {
		return "", false
	}
	s.token = v
	s.origin = OriginDurable
	return v, true
}

// Clear removes the token everywhere. It is idempotent.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
}

// Invalidate clears the token and reports whether this call is the first
// invalidation of the current credential. Concurrent callers observe true at
// most once until Set installs a new credential.
func (s *Store) Invalidate(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.armed.CompareAndSwap(true, false)
	s.clearLocked(ctx)
	return first
}

// Expired reports whether the current credential has been invalidated.
func (s *Store) Expired() bool {
	return !s.armed.Load()
}

// Origin reports where the in-memory token came from.
func (s *Store) Origin() Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

func (s *Store) clearLocked(ctx context.Context) {
	s.token = ""
	s.origin = OriginNone
	s.loaded = true
	s.cleared = true
	if err := s.kv.Delete(ctx, s.key); err != nil {
		log.WithError(err).WithField("key", s.key).Warn("failed to delete persisted token")
	}
}
