package metrics

import "time"

// NoopSink is a Sink implementation that discards all metrics.
// Used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (s *NoopSink) PublishCompleted(statusClass string, duration time.Duration)           {}
func (s *NoopSink) PublishOutcome(outcome string)                                         {}
func (s *NoopSink) HandlerCompleted(eventType, status string, duration time.Duration)     {}
func (s *NoopSink) DuplicateSkipped(eventType string)                                     {}
func (s *NoopSink) DLQAlert(eventType string)                                             {}
func (s *NoopSink) BreakerStateChanged(name, state string)                                {}
func (s *NoopSink) BreakerRejected(name string)                                           {}
func (s *NoopSink) TickStarted()                                                          {}
func (s *NoopSink) TickCompleted(duration time.Duration, remindersFired int, err error)   {}
func (s *NoopSink) BufferSizeUpdate(size int)                                             {}
func (s *NoopSink) EmitError()                                                            {}
