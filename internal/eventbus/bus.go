package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Bus dispatches events to registered handlers in priority order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID. Returns true if a handler was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Handlers returns all registered handlers, for introspection.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// Dispatch sends event to every registered handler that handles its
// type, in priority order (lowest first). Every handler runs even if an
// earlier one errors; all errors are joined and returned to the caller —
// the bus never swallows a handler failure silently.
func (b *Bus) Dispatch(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	b.mu.RUnlock()

	var errs []error
	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("eventbus: context canceled before handler %q: %w", h.ID(), err))
			break
		}
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("eventbus: handler %q: %w", h.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// matchingHandlers returns handlers that handle the given event type,
// sorted by priority (lowest first). Must be called with at least a read
// lock held.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
