package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dashsync-go/internal/config"
	"dashsync-go/internal/credential"
	"dashsync-go/internal/dashboard"
	apierr "dashsync-go/internal/errors"
	"dashsync-go/internal/events"
	"dashsync-go/internal/logging"
	"dashsync-go/internal/realtime"
	"dashsync-go/internal/runtime"
	"dashsync-go/internal/server"
	"dashsync-go/internal/storage"
	"dashsync-go/internal/upstream"
	"dashsync-go/internal/version"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// agent owns every long-lived component of the headless process.
type agent struct {
	id      string
	config  func() *config.Config
	hub     *events.Hub
	kv      storage.KV
	tokens  *credential.Store
	client  *upstream.Client
	sync    *dashboard.Synchronizer
	tasks   *runtime.TaskManager
	server  *server.Server
	channel *channelSlot
}

// channelSlot tracks the push channel of the current synchronizer run.
type channelSlot struct {
	mu      sync.Mutex
	current *realtime.Manager
	delay   time.Duration
}

func (s *channelSlot) set(m *realtime.Manager) {
	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
}

func (s *channelSlot) get() *realtime.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *channelSlot) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.SetReconnectDelay(d)
	}
}

func (s *channelSlot) reconnectDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

func (s *channelSlot) State() realtime.State {
	if cur := s.get(); cur != nil {
		return cur.State()
	}
	return realtime.Disconnected
}

func (s *channelSlot) Stats() realtime.Stats {
	if cur := s.get(); cur != nil {
		return cur.Stats()
	}
	return realtime.Stats{State: realtime.Disconnected.String()}
}

func newAgent(ctx context.Context, cfgFn func() *config.Config) (*agent, error) {
	cfg := cfgFn()
	a := &agent{
		id:     uuid.NewString(),
		config: cfgFn,
		hub:    events.NewHub(),
		tasks:  runtime.NewTaskManager(ctx),
	}

	a.kv = storage.Open(ctx, cfg.Storage)
	a.tokens = credential.NewStore(a.kv)

	client, err := upstream.NewFromConfig(cfg.Backend, a.tokens,
		upstream.WithPublisher(a.hub),
		upstream.WithUserAgent("dashsync/"+version.Version),
	)
	if err != nil {
		_ = a.kv.Close()
		return nil, fmt.Errorf("backend client: %w", err)
	}
	a.client = client

	opts := dashboard.Options{
		Backend:         client,
		Bus:             a.hub,
		RefreshInterval: cfg.Sync.RefreshInterval,
		AnalyticsPeriod: cfg.Sync.AnalyticsPeriod,
	}
	if !cfg.Realtime.Disabled {
		a.channel = &channelSlot{delay: cfg.Realtime.ReconnectDelay}
		opts.NewChannel = a.newChannel
	}
	a.sync = dashboard.New(opts)

	a.hub.Subscribe(events.TopicSessionExpired, func(_ context.Context, ev events.Event) {
		fields := log.Fields{"agent_id": a.id}
		if se, ok := ev.Payload.(upstream.SessionExpired); ok {
			fields["method"] = se.Method
			fields["path"] = se.Path
		}
		log.WithFields(fields).Warn("session expired, dashboard reset")
	})

	if cfg.Server.Listen != "" {
		deps := server.Dependencies{
			Config:  cfgFn,
			View:    a.sync,
			Session: a.tokens,
			Tasks:   a.tasks,
		}
		if a.channel != nil {
			deps.Channel = a.channel
		}
		a.server = server.New(cfg.Server.Listen, deps)
	}
	return a, nil
}

func (a *agent) newChannel() dashboard.Channel {
	cfg := a.config()
	url := cfg.Realtime.URL
	if url == "" {
		url = a.client.ChannelURL()
	}
	opts := realtime.Options{
		URL:              url,
		ReconnectDelay:   a.channel.reconnectDelay(),
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		Publisher:        a.hub,
	}
	if cfg.Realtime.SendToken {
		opts.Tokens = a.tokens
	}
	m := realtime.NewManager(opts)
	a.channel.set(m)
	return m
}

// start launches the background tasks. The session keeper runs at once and
// then on every refresh interval.
func (a *agent) start() error {
	cfg := a.config()
	if a.server != nil {
		if err := a.tasks.Start("status-server", "local status surface", a.server.Run); err != nil {
			return err
		}
	}
	return a.tasks.StartPeriodic("session-keeper", "login and keep the dashboard synchronized",
		cfg.Sync.RefreshInterval, a.ensureSynchronized)
}

// ensureSynchronized logs in when needed and (re)starts the synchronizer
// after startup or a session expiry.
func (a *agent) ensureSynchronized(ctx context.Context) error {
	if a.sync.Running() {
		return nil
	}
	cfg := a.config()
	if _, ok := a.tokens.Get(ctx); !ok {
		if cfg.Auth.Email == "" || cfg.Auth.Password == "" {
			log.Warn("no stored session and no credentials configured; waiting")
			return nil
		}
		if _, err := a.client.Login(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		log.WithField("email", cfg.Auth.Email).Info("logged in")
	}

	err := a.sync.Start(ctx)
	var snapErr *dashboard.SnapshotError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dashboard.ErrAlreadyStarted):
		return nil
	case errors.As(err, &snapErr):
		log.WithError(err).Warn("dashboard started with stale sections")
		return nil
	case apierr.IsUnauthorized(err):
		return fmt.Errorf("stored session rejected: %w", err)
	default:
		return err
	}
}

// applyConfig hot-applies the settings that do not need a restart.
func (a *agent) applyConfig(cfg *config.Config) {
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Warn("failed to reapply logging configuration")
	}
	a.sync.SetRefreshInterval(cfg.Sync.RefreshInterval)
	if a.channel != nil {
		a.channel.setDelay(cfg.Realtime.ReconnectDelay)
	}
	log.WithFields(log.Fields{
		"refresh_interval": cfg.Sync.RefreshInterval.String(),
		"reconnect_delay":  cfg.Realtime.ReconnectDelay.String(),
	}).Info("configuration applied")
}

func (a *agent) shutdown(ctx context.Context) {
	if err := a.tasks.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("background tasks did not stop in time")
	}
	a.sync.Stop()
	if err := a.kv.Close(); err != nil {
		log.WithError(err).Warn("failed to close storage")
	}
}
