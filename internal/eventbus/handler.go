package eventbus

import "context"

// Handler processes events on the bus. Handlers are called in priority
// order (lower priority value = called earlier) for matching event types.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event types this handler processes.
	Handles() []EventType

	// Priority determines call order. Lower values are called first.
	Priority() int

	// Handle processes a single event. An error is never swallowed: the
	// bus collects it, continues the chain (one subscriber's failure
	// must not block another's), and surfaces every error to the caller
	// of Dispatch.
	Handle(ctx context.Context, event *Event) error
}
