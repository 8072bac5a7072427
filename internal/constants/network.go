package constants

import "time"

// HTTP transport settings for the backend client.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultExpectContinueTimeout = 2 * time.Second
	DefaultKeepAlive             = 30 * time.Second

	MaxIdleConns        = 16
	MaxIdleConnsPerHost = 8
	IdleConnTimeout     = 90 * time.Second
)

// Real-time channel settings.
const (
	// MaxFrameSize caps a single inbound channel frame.
	MaxFrameSize = 1 << 20
	// ChannelPath is appended to the backend base URL to reach the push channel.
	ChannelPath = "/ws"
)

// Storage keys.
const (
	// TokenKey is the single durable key holding the bearer token.
	TokenKey = "auth_token"
)

// View stream settings for the local status server.
const (
	StreamPingInterval   = 30 * time.Second
	StreamPongWait       = 90 * time.Second
	StreamWriteWait      = 10 * time.Second
	StreamMaxConnections = 32
)
