// Package events is the in-process invalidation bus. Publishing is
// synchronous and fire-and-forget: every listener subscribed at publish
// time runs before Publish returns, in subscription order.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind names an invalidation event.
type Kind int

const (
	// BulkReset signals the authoritative database was wiped or reseeded.
	BulkReset Kind = iota + 1
	// ItemCompleted signals one content item was marked complete (Slug set).
	ItemCompleted
	// QuizCompleted signals a quiz submission was durably recorded.
	QuizCompleted
)

func (k Kind) String() string {
	switch k {
	case BulkReset:
		return "bulk-reset"
	case ItemCompleted:
		return "item-completed"
	case QuizCompleted:
		return "quiz-completed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single notification.
type Event struct {
	Kind Kind
	Slug string
}

// Handler receives events.
type Handler func(Event)

// Publisher dispatches events.
type Publisher interface {
	Publish(Event)
}

// Subscriber registers handlers. The returned func unsubscribes and is
// safe to call more than once.
type Subscriber interface {
	Subscribe(Kind, Handler) func()
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus implements Publisher and Subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]subscription
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		subs:   make(map[Kind][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for events of kind k.
func (b *Bus) Subscribe(k Kind, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[k] = append(b.subs[k], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(k, id) })
	}
}

func (b *Bus) unsubscribe(k Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[k]
	for i, s := range subs {
		if s.id == id {
			// Copy so an in-progress Publish keeps iterating its own snapshot.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.subs[k] = append(next, subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to the current listeners for e.Kind.
// Handlers run without the bus lock held, so they may publish or
// (un)subscribe. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.Kind]
	b.mu.RUnlock()

	b.logger.Debug("publishing event", "kind", e.Kind.String(), "slug", e.Slug, "listeners", len(subs))
	for _, s := range subs {
		b.dispatch(s.handler, e)
	}
}

func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event handler panicked", "kind", e.Kind.String(), "panic", r)
		}
	}()
	h(e)
}

// Listeners returns how many handlers are subscribed to k.
func (b *Bus) Listeners(k Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[k])
}
