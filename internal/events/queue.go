package events

import "sync"

// Queue runs callbacks one at a time in push order. Push is cheap and may
// happen under a caller's lock; Drain must not. Whichever goroutine finds the
// queue idle drains it, so callbacks may push more work or re-enter the
// component that owns the queue without deadlocking.
type Queue struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// Push appends fn without running it.
func (q *Queue) Push(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

// Drain runs queued callbacks until the queue is empty, unless another
// goroutine is already doing so.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		next := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()
		next()
	}
}
