package config

import (
	"os"
	"path/filepath"
	"time"

	"dashsync-go/internal/constants"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (m *Manager) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		m.startPollingWatcher()
		return
	}

	// The directory catches editors that replace the file via rename.
	configDir := filepath.Dir(m.path)
	if err := watcher.Add(configDir); err != nil {
		log.WithError(err).WithField("dir", configDir).Warn("failed to watch config directory, falling back to polling")
		watcher.Close()
		m.startPollingWatcher()
		return
	}

	log.WithField("path", m.path).Info("file watcher started using fsnotify")

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		target := filepath.Clean(m.path)

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(constants.ConfigReloadDebounce, m.checkAndReload)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("file watcher error")

			case <-m.stopCh:
				if debounce != nil {
					debounce.Stop()
				}
				return
			}
		}
	}()
}

// startPollingWatcher is a fallback when fsnotify is not available.
func (m *Manager) startPollingWatcher() {
	ticker := time.NewTicker(constants.ConfigPollInterval)
	log.WithField("interval", constants.ConfigPollInterval.String()).Info("file watcher started using polling")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkAndReload()
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *Manager) checkAndReload() {
	select {
	case <-m.stopCh:
		return
	default:
	}
	path := m.Path()
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	m.mu.RLock()
	changed := info.ModTime().After(m.lastMod)
	m.mu.RUnlock()
	if !changed {
		return
	}
	if err := m.Reload(); err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to reload config")
	}
}

func logConfigChanges(old, new *Config) {
	if old == nil || new == nil {
		return
	}
	if old.Backend.BaseURL != new.Backend.BaseURL {
		log.WithFields(log.Fields{"field": "backend.base_url", "old": old.Backend.BaseURL, "new": new.Backend.BaseURL}).Info("config changed")
	}
	if old.Sync.RefreshInterval != new.Sync.RefreshInterval {
		log.WithFields(log.Fields{"field": "sync.refresh_interval", "old": old.Sync.RefreshInterval.String(), "new": new.Sync.RefreshInterval.String()}).Info("config changed")
	}
	if old.Realtime.ReconnectDelay != new.Realtime.ReconnectDelay {
		log.WithFields(log.Fields{"field": "realtime.reconnect_delay", "old": old.Realtime.ReconnectDelay.String(), "new": new.Realtime.ReconnectDelay.String()}).Info("config changed")
	}
	if old.Logging.Level != new.Logging.Level {
		log.WithFields(log.Fields{"field": "logging.level", "old": old.Logging.Level, "new": new.Logging.Level}).Info("config changed")
	}
	if old.Logging.Debug != new.Logging.Debug {
		log.WithFields(log.Fields{"field": "logging.debug", "old": old.Logging.Debug, "new": new.Logging.Debug}).Info("config changed")
	}
}
