package realtime

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"dashsync-go/internal/constants"
	"dashsync-go/internal/events"
	"dashsync-go/internal/monitoring"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned by Open once the manager has been closed.
	ErrClosed = errors.New("realtime: manager closed")
	// ErrAlreadyOpen is returned by Open when the channel is not Disconnected.
	ErrAlreadyOpen = errors.New("realtime: channel already open")
)

// Handler receives parsed inbound messages.
type Handler func(Message)

// StateHandler observes state transitions.
type StateHandler func(from, to State)

// TokenSource supplies the bearer token attached to the handshake.
type TokenSource interface {
	Get(ctx context.Context) (string, bool)
}

// Options configures a Manager.
type Options struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	// Tokens, when set, adds "Authorization: Bearer" to every handshake.
	Tokens    TokenSource
	Publisher events.Publisher
	Header    http.Header
	Dialer    *websocket.Dialer
}

// Manager owns one push channel and keeps it connected until Close.
//
// State follows Disconnected -> Connecting -> Connected, falling back to
// Reconnecting on any handshake failure or connection loss and retrying after
// a fixed delay. Close is terminal. Subscriber and state callbacks run one at a
// time in event order and may call Close.
type Manager struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	tokens    TokenSource
	publisher events.Publisher

	mu          sync.Mutex
	state       State
	gen         uint64
	delay       time.Duration
	conn        *websocket.Conn
	cancelDial  context.CancelFunc
	timer       *time.Timer
	connectedAt time.Time
	lastErr     string

	attempts   uint64
	failures   uint64
	reconnects uint64
	delivered  uint64
	dropped    uint64

	subMu     sync.RWMutex
	nextSubID int64
	subs      map[int64]Handler
	stateSubs map[int64]StateHandler

	queue events.Queue
}

// NewManager builds a manager in the Disconnected state.
func NewManager(opts Options) *Manager {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = constants.DefaultReconnectDelay
	}
	base := opts.Dialer
	if base == nil {
		base = websocket.DefaultDialer
	}
	d := *base
	dialer := &d
	if opts.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = opts.HandshakeTimeout
	} else if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = constants.DefaultHandshakeTimeout
	}
	return &Manager{
		url:       opts.URL,
		header:    opts.Header.Clone(),
		dialer:    dialer,
		tokens:    opts.Tokens,
		publisher: opts.Publisher,
		delay:     delay,
		subs:      make(map[int64]Handler),
		stateSubs: make(map[int64]StateHandler),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the channel counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		State:      m.state.String(),
		URL:        m.url,
		Attempts:   m.attempts,
		Failures:   m.failures,
		Reconnects: m.reconnects,
		Delivered:  m.delivered,
		Dropped:    m.dropped,
		LastError:  m.lastErr,
	}
	if m.state == Connected {
		s.ConnectedAt = m.connectedAt
	}
	return s
}

// SetReconnectDelay changes the delay used by the next reconnect.
func (m *Manager) SetReconnectDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// Subscribe registers h for every parsed message and returns a disposer.
func (m *Manager) Subscribe(h Handler) func() {
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subs[id] = h
	m.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

// OnStateChange registers h for state transitions and returns a disposer.
func (m *Manager) OnStateChange(h StateHandler) func() {
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.stateSubs[id] = h
	m.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.stateSubs, id)
			m.subMu.Unlock()
		})
	}
}

// Open starts connecting. It is valid only from Disconnected.
func (m *Manager) Open() error {
	m.mu.Lock()
	switch m.state {
	case Closed:
		m.mu.Unlock()
		return ErrClosed
	case Disconnected:
	default:
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	m.startDialLocked()
	m.mu.Unlock()

	m.queue.Drain()
	return nil
}

// Close tears the channel down for good. It cancels the reconnect timer and
// any in-flight dial, and is safe to call repeatedly or from a callback.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.gen++
	m.state = Closed
	m.pushStateLocked(from, Closed)
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	m.queue.Drain()
}

// startDialLocked moves to Connecting under a fresh generation and dials in
// the background. m.mu must be held.
func (m *Manager) startDialLocked() {
	m.gen++
	gen := m.gen
	m.pushStateLocked(m.state, Connecting)
	m.state = Connecting
	m.attempts++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	header := m.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if m.tokens != nil {
		if tok, ok := m.tokens.Get(ctx); ok {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	m.mu.Lock()
	if gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if err != nil {
		m.failures++
		m.lastErr = err.Error()
		m.scheduleReconnectLocked(gen)
		failures := m.failures
		m.mu.Unlock()

		fields := log.Fields{"component": "realtime", "url": m.url, "failures": failures}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}
		log.WithError(err).WithFields(fields).Warn("channel handshake failed")
		m.queue.Drain()
		return
	}

	m.conn = conn
	m.pushStateLocked(Connecting, Connected)
	m.state = Connected
	m.failures = 0
	m.lastErr = ""
	m.connectedAt = time.Now()
	m.mu.Unlock()

	log.WithFields(log.Fields{"component": "realtime", "url": m.url}).Info("channel connected")
	go m.read(gen, conn)
	m.queue.Drain()
}

func (m *Manager) read(gen uint64, conn *websocket.Conn) {
	conn.SetReadLimit(constants.MaxFrameSize)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, conn, err)
			return
		}
		if kind != websocket.TextMessage {
			m.drop(gen, "binary", nil)
			continue
		}
		msg, perr := ParseMessage(data)
		if perr != nil {
			m.drop(gen, "malformed", perr)
			continue
		}
		monitoring.ChannelFramesTotal.WithLabelValues("ok").Inc()
		m.queue.Push(func() { m.deliver(gen, msg) })
		m.queue.Drain()
	}
}

func (m *Manager) drop(gen uint64, reason string, err error) {
	m.mu.Lock()
	live := gen == m.gen
	if live {
		m.dropped++
	}
	m.mu.Unlock()
	if !live {
		return
	}
	monitoring.ChannelFramesTotal.WithLabelValues(reason).Inc()
	entry := log.WithFields(log.Fields{"component": "realtime", "reason": reason})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("dropped inbound frame")
}

func (m *Manager) connectionLost(gen uint64, conn *websocket.Conn, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.failures++
	m.lastErr = err.Error()
	m.scheduleReconnectLocked(gen)
	m.mu.Unlock()

	_ = conn.Close()
	log.WithError(err).WithFields(log.Fields{"component": "realtime", "url": m.url}).Warn("channel lost")
	m.queue.Drain()
}

// scheduleReconnectLocked arms the fixed-delay timer. m.mu must be held.
func (m *Manager) scheduleReconnectLocked(gen uint64) {
	m.pushStateLocked(m.state, Reconnecting)
	m.state = Reconnecting
	m.reconnects++
	monitoring.ChannelReconnectsTotal.Inc()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.delay, func() { m.reconnect(gen) })
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.startDialLocked()
	m.mu.Unlock()
	m.queue.Drain()
}

func (m *Manager) deliver(gen uint64, msg Message) {
	m.mu.Lock()
	if gen != m.gen || m.state == Closed {
		m.mu.Unlock()
		return
	}
	m.delivered++
	m.mu.Unlock()

	for _, h := range m.snapshotSubs() {
		h(msg)
	}
}

// pushStateLocked queues observers for a transition. m.mu must be held so
// transitions are queued in the order they happen.
func (m *Manager) pushStateLocked(from, to State) {
	m.queue.Push(func() {
		monitoring.SetChannelState(to.String(), stateNames[:])
		log.WithFields(log.Fields{"component": "realtime", "from": from.String(), "to": to.String()}).Debug("channel state changed")
		for _, h := range m.snapshotStateSubs() {
			h(from, to)
		}
		if m.publisher != nil {
			m.publisher.Publish(context.Background(), events.TopicChannelState, StateChange{
				From: from.String(),
				To:   to.String(),
				At:   time.Now().UTC(),
			}, nil)
		}
	})
}

func (m *Manager) snapshotSubs() []Handler {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	ids := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.subs[id])
	}
	return out
}

func (m *Manager) snapshotStateSubs() []StateHandler {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	ids := make([]int64, 0, len(m.stateSubs))
	for id := range m.stateSubs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]StateHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.stateSubs[id])
	}
	return out
}
