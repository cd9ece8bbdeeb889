package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingHandler struct {
	id       string
	handles  []EventType
	priority int
	err      error
	calls    *[]string
}

func (h *recordingHandler) ID() string            { return h.id }
func (h *recordingHandler) Handles() []EventType  { return h.handles }
func (h *recordingHandler) Priority() int         { return h.priority }
func (h *recordingHandler) Handle(_ context.Context, _ *Event) error {
	*h.calls = append(*h.calls, h.id)
	return h.err
}

func TestDispatchOrdersByPriority(t *testing.T) {
	var calls []string
	bus := New()
	bus.Register(&recordingHandler{id: "late", handles: []EventType{EventExecutionCompleted}, priority: 20, calls: &calls})
	bus.Register(&recordingHandler{id: "early", handles: []EventType{EventExecutionCompleted}, priority: 5, calls: &calls})
	bus.Register(&recordingHandler{id: "other-type", handles: []EventType{EventExecutionFailed}, priority: 1, calls: &calls})

	if err := bus.Dispatch(context.Background(), &Event{Type: EventExecutionCompleted, ExecutionID: "exec-1"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(calls) != 2 || calls[0] != "early" || calls[1] != "late" {
		t.Fatalf("got call order %v, want [early late]", calls)
	}
}

func TestDispatchContinuesAfterHandlerErrorAndReportsIt(t *testing.T) {
	var calls []string
	bus := New()
	boom := errors.New("boom")
	bus.Register(&recordingHandler{id: "failing", handles: []EventType{EventExecutionFailed}, priority: 1, err: boom, calls: &calls})
	bus.Register(&recordingHandler{id: "after", handles: []EventType{EventExecutionFailed}, priority: 2, calls: &calls})

	err := bus.Dispatch(context.Background(), &Event{Type: EventExecutionFailed})
	if err == nil {
		t.Fatal("expected Dispatch to surface the handler error, got nil")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Dispatch error does not wrap the handler's error: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("expected both handlers to run despite the first erroring, got %v", calls)
	}
}

func TestUnregisterRemovesHandler(t *testing.T) {
	var calls []string
	bus := New()
	bus.Register(&recordingHandler{id: "h1", handles: []EventType{EventExecutionStarted}, calls: &calls})
	if !bus.Unregister("h1") {
		t.Fatal("expected Unregister to find h1")
	}
	if err := bus.Dispatch(context.Background(), &Event{Type: EventExecutionStarted}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no calls after unregister, got %v", calls)
	}
}

func TestWaitHandlerReceivesMatchingExecutionOnly(t *testing.T) {
	bus := New()
	wh := NewWaitHandler("exec-target")
	bus.Register(wh)

	if err := bus.Dispatch(context.Background(), &Event{Type: EventExecutionCompleted, ExecutionID: "exec-other"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	select {
	case <-wh.Done():
		t.Fatal("WaitHandler fired for a non-matching execution id")
	case <-time.After(20 * time.Millisecond):
	}

	if err := bus.Dispatch(context.Background(), &Event{Type: EventExecutionCompleted, ExecutionID: "exec-target", Status: "completed"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	select {
	case ev := <-wh.Done():
		if ev.Status != "completed" {
			t.Errorf("got status %q, want completed", ev.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitHandler never received its matching execution event")
	}
}
