package metrics

import (
	"errors"
	"testing"
	"time"
)

// TestNoopSink_ImplementsSink pins the interface and verifies every method is
// callable without side effects.
func TestNoopSink_ImplementsSink(t *testing.T) {
	var s Sink = NewNoopSink()

	s.PublishCompleted(StatusClass2xx, time.Millisecond)
	s.PublishOutcome(OutcomeSuccess)
	s.HandlerCompleted("task.created", "ok", time.Millisecond)
	s.DuplicateSkipped("task.created")
	s.DLQAlert("task.created")
	s.BreakerStateChanged("scheduler", "open")
	s.BreakerRejected("scheduler")
	s.TickStarted()
	s.TickCompleted(time.Millisecond, 3, errors.New("tick error"))
	s.BufferSizeUpdate(10)
	s.EmitError()
}
