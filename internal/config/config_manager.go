package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dashsync-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// Manager holds the active configuration and reloads it when the file changes.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	path      string
	stopCh    chan struct{}
	stopOnce  sync.Once
	onChange  []func(*Config)
	lastMod   time.Time
	publisher events.Publisher
}

// NewManager loads path and starts watching it. An empty path searches the
// usual locations and falls back to defaults.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = findConfigFile()
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	m := &Manager{path: path, stopCh: make(chan struct{})}
	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		log.WithField("path", path).Warn("using default configuration (no config file found)")
		cfg, err = Load("")
		if err != nil {
			return nil, err
		}
		m.path = ""
	}
	m.config = cfg
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.lastMod = info.ModTime()
			m.startWatcher()
		}
	}
	return m, nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		"dashsync.yaml",
		"dashsync.yml",
		"dashsync.json",
		filepath.Join(home, ".dashsync", "config.yaml"),
		"/etc/dashsync/config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Path returns the watched file, or "" when running on defaults.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// SetEventPublisher wires the hub that receives config.updated events.
func (m *Manager) SetEventPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// Close stops the watcher.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Reload re-reads the file. Invalid files leave the active config in place.
func (m *Manager) Reload() error {
	path := m.Path()
	if path == "" {
		return nil
	}
	info, statErr := os.Stat(path)
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	old := m.config
	m.config = cfg
	if statErr == nil {
		m.lastMod = info.ModTime()
	}
	m.mu.Unlock()

	m.emitChange(old, cfg)
	logConfigChanges(old, cfg)
	return nil
}

func (m *Manager) listenersSnapshot() ([]func(*Config), events.Publisher) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	callbacks := make([]func(*Config), len(m.onChange))
	copy(callbacks, m.onChange)
	return callbacks, m.publisher
}

func (m *Manager) emitChange(oldCfg, newCfg *Config) {
	callbacks, publisher := m.listenersSnapshot()
	for _, fn := range callbacks {
		cp := *newCfg
		fn(&cp)
	}
	if publisher != nil {
		event := ChangeEvent{
			Path:      m.Path(),
			UpdatedAt: time.Now().UTC(),
			Config:    *newCfg,
		}
		if oldCfg != nil {
			prev := *oldCfg
			event.Previous = &prev
		}
		publisher.Publish(context.Background(), events.TopicConfigUpdated, event, nil)
	}
}

// ChangeEvent is the payload broadcast when configuration changes.
type ChangeEvent struct {
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
	Config    Config    `json:"config"`
	Previous  *Config   `json:"previous,omitempty"`
}
