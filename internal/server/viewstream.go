package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"dashsync-go/internal/constants"
	"dashsync-go/internal/dashboard"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ErrMaxConnectionsReached is returned by Serve when the stream is full.
var ErrMaxConnectionsReached = errors.New("maximum view stream connections reached")

// ErrBroadcasterClosed is returned by Serve after Close.
var ErrBroadcasterClosed = errors.New("view stream closed")

// ViewFrame is one message on the view stream.
type ViewFrame struct {
	Seq  uint64         `json:"seq"`
	At   time.Time      `json:"at"`
	View dashboard.View `json:"view"`
}

// ViewBroadcaster pushes the full view to every connected stream client.
// Each client holds at most one pending frame; a slow client skips
// intermediate frames and always ends with the latest one.
type ViewBroadcaster struct {
	mu             sync.RWMutex
	clients        map[*streamClient]struct{}
	latest         []byte
	seq            uint64
	maxConnections int
	closed         bool

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
}

type streamClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamClient) offer(frame []byte) {
	select {
	case c.send <- frame:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *streamClient) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewViewBroadcaster creates a broadcaster admitting up to limit clients.
func NewViewBroadcaster(limit int) *ViewBroadcaster {
	if limit <= 0 {
		limit = constants.StreamMaxConnections
	}
	return &ViewBroadcaster{
		clients:        make(map[*streamClient]struct{}),
		maxConnections: limit,
		pingInterval:   constants.StreamPingInterval,
		pongWait:       constants.StreamPongWait,
		writeWait:      constants.StreamWriteWait,
	}
}

// Publish encodes v and offers it to every client.
func (b *ViewBroadcaster) Publish(v dashboard.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	frame, err := json.Marshal(ViewFrame{Seq: b.seq, At: time.Now().UTC(), View: v})
	if err != nil {
		log.WithError(err).Warn("encode view frame")
		return
	}
	b.latest = frame
	for c := range b.clients {
		c.offer(frame)
	}
}

// Accepting reports whether another client would be admitted.
func (b *ViewBroadcaster) Accepting() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed && len(b.clients) < b.maxConnections
}

// Count returns the number of connected clients.
func (b *ViewBroadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Serve streams frames to conn until the client goes away or the
// broadcaster closes. The latest frame is sent first. conn is always closed
// on return.
func (b *ViewBroadcaster) Serve(conn *websocket.Conn) error {
	client := &streamClient{conn: conn, send: make(chan []byte, 1), done: make(chan struct{})}

	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		_ = conn.Close()
		return ErrBroadcasterClosed
	case len(b.clients) >= b.maxConnections:
		b.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream full"),
			time.Now().Add(b.writeWait))
		_ = conn.Close()
		return ErrMaxConnectionsReached
	}
	b.clients[client] = struct{}{}
	if b.latest != nil {
		client.offer(b.latest)
	}
	count := len(b.clients)
	b.mu.Unlock()
	log.WithField("clients", count).Info("view stream client connected")

	go b.readLoop(client)
	err := b.writeLoop(client)

	b.remove(client)
	_ = conn.Close()
	return err
}

// readLoop discards client input and notices disconnects.
func (b *ViewBroadcaster) readLoop(c *streamClient) {
	defer c.stop()
	_ = c.conn.SetReadDeadline(time.Now().Add(b.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(b.pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (b *ViewBroadcaster) writeLoop(c *streamClient) error {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(b.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(b.writeWait)); err != nil {
				return err
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(b.writeWait))
			return nil
		}
	}
}

func (b *ViewBroadcaster) remove(c *streamClient) {
	b.mu.Lock()
	_, ok := b.clients[c]
	delete(b.clients, c)
	remaining := len(b.clients)
	b.mu.Unlock()
	c.stop()
	if ok {
		log.WithField("clients", remaining).Info("view stream client disconnected")
	}
}

// Close disconnects every client and rejects new ones.
func (b *ViewBroadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	clients := make([]*streamClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()
	for _, c := range clients {
		c.stop()
	}
}
