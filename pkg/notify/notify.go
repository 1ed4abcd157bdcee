// Package notify is an in-process, fire-and-forget event bus.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Event is a published notification.
type Event struct {
	Name      string
	Candidate api.ExpenseCandidate
}

// DefaultBuffer is the per-subscriber queue size used when none is given.
const DefaultBuffer = 16

// Bus fans events out to subscribers without blocking the publisher.
// Events are dropped for subscribers whose queue is full.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event

	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "notify"),
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a listener with the given queue size.
// The returned cancel function unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Emit implements api.Notifier.
func (b *Bus) Emit(event string, payload api.ExpenseCandidate) {
	ev := Event{Name: event, Candidate: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("subscriber queue full, dropping event", "subscriber", id, "event", event)
		}
	}
}

// Dropped returns how many deliveries were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Log is a notifier that only writes events to the log.
type Log struct {
	Logger *slog.Logger
}

// Emit implements api.Notifier.
func (l Log) Emit(event string, payload api.ExpenseCandidate) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event",
		"event", event,
		"id", payload.ID,
		"amount", payload.Amount.StringFixed(2),
		"merchant", payload.Merchant,
		"category", payload.Category,
		"needs_review", payload.NeedsReview,
	)
}

// Multi emits to every notifier in order.
type Multi []api.Notifier

// Emit implements api.Notifier.
func (m Multi) Emit(event string, payload api.ExpenseCandidate) {
	for _, n := range m {
		n.Emit(event, payload)
	}
}
