package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dashsync-go/internal/constants"
	apierr "dashsync-go/internal/errors"
	"dashsync-go/internal/events"
	"dashsync-go/internal/monitoring"
	"dashsync-go/internal/realtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyStarted is returned by Start while the synchronizer runs.
	ErrAlreadyStarted = errors.New("dashboard: synchronizer already started")
	// ErrStopped is returned when the synchronizer is not running or was
	// stopped while a fetch was in flight.
	ErrStopped = errors.New("dashboard: synchronizer stopped")
)

// Backend fetches full section snapshots.
type Backend interface {
	DashboardStats(ctx context.Context) (map[string]any, error)
	AnalyticsOverview(ctx context.Context, period string) (map[string]any, error)
	ListAPIs(ctx context.Context) ([]map[string]any, error)
	BillingSummary(ctx context.Context) (map[string]any, error)
}

// Channel is the push channel deltas arrive on. A fresh one is requested for
// every Start since a closed channel cannot be reopened.
type Channel interface {
	Open() error
	Close()
	Subscribe(h realtime.Handler) func()
}

// SnapshotError carries the per-section failures of one snapshot pass.
type SnapshotError struct {
	Errors map[Section]error
}

func (e *SnapshotError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, sec := range Sections {
		if err, ok := e.Errors[sec]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", sec, err))
		}
	}
	return "dashboard snapshot failed: " + strings.Join(parts, "; ")
}

func (e *SnapshotError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, sec := range Sections {
		if err, ok := e.Errors[sec]; ok {
			out = append(out, err)
		}
	}
	return out
}

// Options configures a Synchronizer.
type Options struct {
	Backend    Backend
	NewChannel func() Channel
	// Bus, when set, receives view updates and delivers session expiry.
	Bus             events.Bus
	RefreshInterval time.Duration
	AnalyticsPeriod string
}

// Synchronizer keeps a View in step with the backend: a full snapshot on
// Start, deltas from the push channel while running, and a periodic full
// refresh. Every mutation is applied under one lock when it completes, so the
// most recently completed operation wins.
type Synchronizer struct {
	backend    Backend
	newChannel func() Channel
	bus        events.Bus
	period     string

	mu         sync.Mutex
	view       View
	errs       map[Section]error
	gen        uint64
	running    bool
	starting   bool
	interval   time.Duration
	channel    Channel
	unsubDelta func()
	stopTick   chan struct{}

	subMu  sync.RWMutex
	nextID int64
	subs   map[int64]func(View)

	queue events.Queue
}

// New builds a stopped synchronizer. When opts.Bus is set it also listens for
// session expiry, which stops the synchronizer and empties the view.
func New(opts Options) *Synchronizer {
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = constants.DefaultRefreshInterval
	}
	period := opts.AnalyticsPeriod
	if period == "" {
		period = constants.DefaultAnalyticsPeriod
	}
	s := &Synchronizer{
		backend:    opts.Backend,
		newChannel: opts.NewChannel,
		bus:        opts.Bus,
		period:     period,
		interval:   interval,
		errs:       make(map[Section]error),
		subs:       make(map[int64]func(View)),
	}
	if s.bus != nil {
		s.bus.Subscribe(events.TopicSessionExpired, func(context.Context, events.Event) {
			s.Stop()
			s.Reset()
		})
	}
	return s
}

// Start pulls the full snapshot, then opens the channel and starts the
// refresh timer. An unauthorized section aborts Start with nothing opened.
// Other section failures leave those sections stale and are reported as a
// *SnapshotError while the synchronizer keeps running.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.starting = true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	errs := s.fetchAll(ctx, gen)
	if err := firstUnauthorized(errs); err != nil {
		s.mu.Lock()
		current := gen == s.gen
		if current {
			s.gen++
			s.starting = false
			s.resetLocked()
		}
		s.mu.Unlock()
		if current {
			s.queue.Drain()
		}
		log.WithError(err).WithField("component", "dashboard").Warn("snapshot rejected, session invalid")
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrStopped
	}
	s.starting = false
	s.running = true
	var ch Channel
	if s.newChannel != nil {
		ch = s.newChannel()
	}
	s.channel = ch
	stop := make(chan struct{})
	s.stopTick = stop
	s.mu.Unlock()

	go s.refreshLoop(gen, stop)
	if ch != nil {
		unsub := ch.Subscribe(func(msg realtime.Message) {
			s.applyDelta(gen, Delta{Type: msg.Type, Data: msg.Data})
		})
		s.mu.Lock()
		if gen == s.gen {
			s.unsubDelta = unsub
			unsub = nil
		}
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		} else if err := ch.Open(); err != nil {
			log.WithError(err).WithField("component", "dashboard").Warn("channel open failed")
		}
	}

	log.WithFields(log.Fields{"component": "dashboard", "failed_sections": len(errs)}).Info("dashboard synchronizer started")
	return snapshotError(errs)
}

// Refresh runs one full snapshot pass. Fetched sections overwrite whatever
// deltas produced in the meantime. An unauthorized section stops the
// synchronizer.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrStopped
	}
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, gen)
}

func (s *Synchronizer) refresh(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		return ErrStopped
	}
	errs := s.fetchAll(ctx, gen)
	if err := firstUnauthorized(errs); err != nil {
		s.stopGen(gen)
		return err
	}
	s.mu.Lock()
	stale = gen != s.gen
	s.mu.Unlock()
	if stale {
		return ErrStopped
	}
	return snapshotError(errs)
}

// OnDelta folds one delta into the view while running. Unknown kinds are
// ignored.
func (s *Synchronizer) OnDelta(d Delta) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.applyDelta(gen, d)
}

// Stop closes the channel, cancels the refresh timer and drops any results
// still in flight. It is idempotent and may be called from callbacks.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running && !s.starting {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
}

func (s *Synchronizer) stopGen(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || (!s.running && !s.starting) {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
}

// stopLocked releases s.mu.
func (s *Synchronizer) stopLocked() {
	s.gen++
	s.running = false
	s.starting = false
	ch := s.channel
	s.channel = nil
	unsub := s.unsubDelta
	s.unsubDelta = nil
	stop := s.stopTick
	s.stopTick = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if unsub != nil {
		unsub()
	}
	if ch != nil {
		ch.Close()
	}
	log.WithField("component", "dashboard").Info("dashboard synchronizer stopped")
}

// Reset empties the view and the recorded errors.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.queue.Drain()
}

func (s *Synchronizer) resetLocked() {
	empty := len(s.view.UpdatedAt) == 0 && len(s.view.Errors) == 0 &&
		s.view.Stats == nil && s.view.Analytics == nil && s.view.Billing == nil && s.view.APIs == nil
	s.view = View{}
	s.errs = make(map[Section]error)
	if !empty {
		s.notifyLocked("")
	}
}

// View returns a copy of the current view.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Clone()
}

// Errors returns the last fetch error per section.
func (s *Synchronizer) Errors() map[Section]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Section]error, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// Running reports whether Start has completed and Stop has not been called.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetRefreshInterval changes the refresh period from the next cycle on.
func (s *Synchronizer) SetRefreshInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Subscribe registers fn for every view change and returns a disposer. Each
// call receives its own copy of the view.
func (s *Synchronizer) Subscribe(fn func(View)) func() {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Synchronizer) fetchAll(ctx context.Context, gen uint64) map[Section]error {
	var (
		g      errgroup.Group
		errMu  sync.Mutex
		failed = make(map[Section]error)
	)
	record := func(sec Section, err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		failed[sec] = err
		errMu.Unlock()
	}
	g.Go(func() error {
		data, err := s.backend.DashboardStats(ctx)
		s.applySnapshot(gen, SectionStats, func(v *View) { v.Stats = data }, err)
		record(SectionStats, err)
		return nil
	})
	g.Go(func() error {
		data, err := s.backend.AnalyticsOverview(ctx, s.period)
		s.applySnapshot(gen, SectionAnalytics, func(v *View) { v.Analytics = data }, err)
		record(SectionAnalytics, err)
		return nil
	})
	g.Go(func() error {
		data, err := s.backend.ListAPIs(ctx)
		s.applySnapshot(gen, SectionAPIs, func(v *View) { v.APIs = data }, err)
		record(SectionAPIs, err)
		return nil
	})
	g.Go(func() error {
		data, err := s.backend.BillingSummary(ctx)
		s.applySnapshot(gen, SectionBilling, func(v *View) { v.Billing = data }, err)
		record(SectionBilling, err)
		return nil
	})
	_ = g.Wait()
	return failed
}

// applySnapshot replaces one section when its fetch completes. A failed fetch
// keeps the previous value and records the error.
func (s *Synchronizer) applySnapshot(gen uint64, sec Section, set func(*View), err error) {
	monitoring.SnapshotsTotal.WithLabelValues(monitoring.ResultLabel(err)).Inc()
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.WithFields(log.Fields{"component": "dashboard", "section": sec}).Debug("dropped late snapshot")
		return
	}
	if err != nil {
		s.errs[sec] = err
		if s.view.Errors == nil {
			s.view.Errors = make(map[Section]string)
		}
		s.view.Errors[sec] = err.Error()
		log.WithError(err).WithFields(log.Fields{
			"component": "dashboard",
			"section":   sec,
			"kind":      apierr.Kind(err),
		}).Warn("snapshot fetch failed, keeping previous value")
	} else {
		set(&s.view)
		s.touchLocked(sec)
		delete(s.errs, sec)
		delete(s.view.Errors, sec)
	}
	s.notifyLocked(sec)
	s.mu.Unlock()
	s.queue.Drain()
}

func (s *Synchronizer) applyDelta(gen uint64, d Delta) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		return
	}
	sec, ok := mergeDelta(&s.view, d)
	if !ok {
		s.mu.Unlock()
		monitoring.DeltasTotal.WithLabelValues("unknown").Inc()
		log.WithFields(log.Fields{"component": "dashboard", "type": d.Type}).Debug("ignored unknown delta")
		return
	}
	s.touchLocked(sec)
	s.notifyLocked(sec)
	s.mu.Unlock()
	monitoring.DeltasTotal.WithLabelValues(d.Type).Inc()
	s.queue.Drain()
}

func (s *Synchronizer) touchLocked(sec Section) {
	if s.view.UpdatedAt == nil {
		s.view.UpdatedAt = make(map[Section]time.Time)
	}
	s.view.UpdatedAt[sec] = time.Now().UTC()
}

// notifyLocked queues subscriber delivery of the current view. s.mu must be
// held so notifications keep mutation order.
func (s *Synchronizer) notifyLocked(sec Section) {
	snapshot := s.view.Clone()
	s.queue.Push(func() {
		for _, fn := range s.snapshotSubs() {
			fn(snapshot.Clone())
		}
		if s.bus != nil {
			var meta map[string]string
			if sec != "" {
				meta = map[string]string{"section": string(sec)}
			}
			s.bus.Publish(context.Background(), events.TopicViewUpdated, snapshot.Clone(), meta)
		}
	})
}

func (s *Synchronizer) snapshotSubs() []func(View) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	ids := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(View), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

func (s *Synchronizer) refreshLoop(gen uint64, stop <-chan struct{}) {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultRequestTimeout)
		err := s.refresh(ctx, gen)
		cancel()
		switch {
		case errors.Is(err, ErrStopped), apierr.IsUnauthorized(err):
			return
		case err != nil:
			log.WithError(err).WithField("component", "dashboard").Warn("periodic refresh incomplete")
		default:
			log.WithField("component", "dashboard").Debug("periodic refresh completed")
		}
		s.mu.Lock()
		interval = s.interval
		s.mu.Unlock()
		timer.Reset(interval)
	}
}

func firstUnauthorized(errs map[Section]error) error {
	for _, sec := range Sections {
		if err, ok := errs[sec]; ok && apierr.IsUnauthorized(err) {
			return err
		}
	}
	return nil
}

func snapshotError(errs map[Section]error) error {
	if len(errs) == 0 {
		return nil
	}
	return &SnapshotError{Errors: errs}
}
