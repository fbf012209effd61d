// Package channel carries fired reminders from the scheduler to the
// dispatcher over a bounded in-process queue.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/metrics"
)

// ErrBufferFull is returned when an Emit cannot hand off the reminder
// within the emit timeout. The scheduler treats it as transient and retries
// on its next tick.
var ErrBufferFull = errors.New("event bus buffer full")

type EventBus struct {
	ch          chan domain.ReminderFired
	emitTimeout time.Duration
	metrics     metrics.Sink
}

type Option func(*EventBus)

// WithEmitTimeout bounds how long Emit blocks on a full buffer before
// giving up with ErrBufferFull. Zero means fail immediately.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink for buffer depth and emit failures.
func WithMetrics(sink metrics.Sink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:      make(chan domain.ReminderFired, buffer),
		metrics: metrics.NewNoopSink(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit hands off a fired reminder to the dispatcher. On a full buffer it
// waits up to the emit timeout, then fails with ErrBufferFull so the caller
// can keep the reminder pending instead of blocking its tick loop.
func (b *EventBus) Emit(ctx context.Context, fired domain.ReminderFired) error {
	select {
	case b.ch <- fired:
		b.metrics.BufferSizeUpdate(len(b.ch))
		return nil
	case <-ctx.Done():
		b.metrics.EmitError()
		return ctx.Err()
	default:
	}

	if b.emitTimeout <= 0 {
		b.metrics.EmitError()
		return ErrBufferFull
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()
	select {
	case b.ch <- fired:
		b.metrics.BufferSizeUpdate(len(b.ch))
		return nil
	case <-ctx.Done():
		b.metrics.EmitError()
		return ctx.Err()
	case <-timer.C:
		b.metrics.EmitError()
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.ReminderFired {
	return b.ch
}
