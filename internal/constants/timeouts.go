package constants

import "time"

const (
	// DefaultRequestTimeout bounds a single dispatcher round trip.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultReconnectDelay is the fixed wait between channel reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultHandshakeTimeout bounds the websocket opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultRefreshInterval controls how often the full snapshot is re-fetched.
	DefaultRefreshInterval = 30 * time.Second
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 10 * time.Second
	// ConfigReloadDebounce collapses bursts of file events into one reload.
	ConfigReloadDebounce = 100 * time.Millisecond
	// ConfigPollInterval is used when fsnotify is unavailable.
	ConfigPollInterval = 5 * time.Second
)
