// Package eventbus dispatches in-process execution lifecycle events from
// the delegate executor to subscribers — the document store's
// result-capture path and the recipes runtime's step-chaining path.
// emdx is local-first with no distributed component, so the bus is
// purely in-process.
package eventbus

import "time"

// EventType classifies an execution lifecycle event.
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionHeartbeat EventType = "execution.heartbeat"
	EventExecutionLogLine   EventType = "execution.log"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionTimeout   EventType = "execution.timeout"
	EventExecutionKilled    EventType = "execution.killed"
)

// Event is a single lifecycle notification flowing through the bus.
type Event struct {
	Type        EventType
	ExecutionID string
	Status      string
	ExitCode    *int
	DocIDOutput *int64
	Output      string
	Message     string
	OccurredAt  time.Time
}
