package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Topic names for core domain events.
const (
	TopicConfigUpdated  = "config.updated"
	TopicSessionExpired = "session.expired"
	TopicChannelState   = "channel.state"
	TopicViewUpdated    = "view.updated"
)

// Event represents a published message on the event bus.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Publisher exposes the ability to publish events to the hub.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

// Subscriber exposes subscription capabilities.
type Subscriber interface {
	Subscribe(topic string, handler Handler) func()
}

// Bus is both sides of the hub.
type Bus interface {
	Publisher
	Subscriber
}

// Hub is a lightweight in-process pub/sub event bus.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Handler
	nextID int64
}

// NewHub constructs a new empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[int64]Handler),
	}
}

// Subscribe registers a handler for the given topic.
// It returns a function that, when invoked, unsubscribes the handler.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[int64]Handler)
	}
	h.subs[topic][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if listeners, ok := h.subs[topic]; ok {
				delete(listeners, id)
				if len(listeners) == 0 {
					delete(h.subs, topic)
				}
			}
		})
	}
}

// Publish dispatches an event to all subscribers of the topic synchronously,
// in subscription order. No lock is held while handlers run.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}

	handlers := h.snapshotHandlers(topic)
	for _, handler := range handlers {
		handler(ctx, event)
	}
}

func (h *Hub) snapshotHandlers(topic string) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	listeners := h.subs[topic]
	if len(listeners) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, listeners[id])
	}
	return out
}
