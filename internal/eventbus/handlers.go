package eventbus

import "context"

// WaitHandler blocks on a single execution id reaching a terminal event,
// the building block the recipes runtime uses to chain one step's
// stdout into the next step's input: a recipe step
// registers one of these, spawns its delegate job, then receives off
// Done once that job's execution finishes.
type WaitHandler struct {
	executionID string
	done        chan *Event
}

// NewWaitHandler returns a handler scoped to a single execution id.
func NewWaitHandler(executionID string) *WaitHandler {
	return &WaitHandler{executionID: executionID, done: make(chan *Event, 1)}
}

func (h *WaitHandler) ID() string { return "wait:" + h.executionID }

func (h *WaitHandler) Handles() []EventType {
	return []EventType{EventExecutionCompleted, EventExecutionFailed, EventExecutionTimeout, EventExecutionKilled}
}

func (h *WaitHandler) Priority() int { return 0 }

func (h *WaitHandler) Handle(_ context.Context, event *Event) error {
	if event.ExecutionID != h.executionID {
		return nil
	}
	select {
	case h.done <- event:
	default:
	}
	return nil
}

// Done returns the channel that receives the terminal event for this
// handler's execution id, exactly once.
func (h *WaitHandler) Done() <-chan *Event {
	return h.done
}
