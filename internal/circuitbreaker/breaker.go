// Package circuitbreaker guards calls to unreliable downstream dependencies.
//
// Each named breaker is a process-wide singleton obtained from a Registry, so
// failure counts accumulate across call sites. State transitions are driven
// purely by call outcomes and wall-clock time; the OPEN -> HALF_OPEN check
// happens lazily on the next call attempt, no background timer involved.
package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

// State is the admission state of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MetricsSink records breaker state changes and rejections.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BreakerStateChanged(name, state string)
	BreakerRejected(name string)
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time

	clock   func() time.Time
	metrics MetricsSink // optional, nil = disabled
}

// NewBreaker creates a breaker in the CLOSED state.
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		clock:        time.Now,
	}
}

// WithClock overrides the time source. Only for tests.
func (b *Breaker) WithClock(clock func() time.Time) *Breaker {
	b.clock = clock
	return b
}

func (b *Breaker) withMetrics(sink MetricsSink) *Breaker {
	b.metrics = sink
	return b
}

// Name returns the breaker's registry name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state without triggering the lazy
// OPEN -> HALF_OPEN transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// IsOpen reports whether calls are currently rejected. When the reset
// timeout has elapsed since the breaker opened, the check itself moves the
// breaker to HALF_OPEN and admits the probe call.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return false
	}
	if b.clock().Sub(b.lastFailure) >= b.resetTimeout {
		b.transition(StateHalfOpen)
		return false
	}
	return true
}

// RecordSuccess resets the failure count; a successful probe in HALF_OPEN
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure increments the failure count. Reaching the threshold while
// CLOSED opens the breaker; any failure while HALF_OPEN re-opens it and
// resets the failure timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.clock()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.failureCount >= b.threshold {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(next State) {
	b.state = next
	if b.metrics != nil {
		b.metrics.BreakerStateChanged(b.name, next.String())
	}
}

// Do invokes fn under the breaker. When the breaker is open, fn is not
// invoked at all and Do reports executed=false with a nil error (the no-op
// result). Otherwise the outcome is recorded and fn's error is returned to
// the caller unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) (executed bool, err error) {
	if b.IsOpen() {
		if b.metrics != nil {
			b.metrics.BreakerRejected(b.name)
		}
		return false, nil
	}

	if err := fn(ctx); err != nil {
		b.RecordFailure()
		return true, err
	}
	b.RecordSuccess()
	return true, nil
}

// Registry hands out singleton breakers by dependency name, creating them
// lazily with shared threshold and reset-timeout defaults.
type Registry struct {
	mu           sync.Mutex
	breakers     map[string]*Breaker
	threshold    int
	resetTimeout time.Duration
	metrics      MetricsSink // optional, nil = disabled
	clock        func() time.Time
}

// NewRegistry creates a registry with the given breaker defaults.
func NewRegistry(threshold int, resetTimeout time.Duration) *Registry {
	return &Registry{
		breakers:     make(map[string]*Breaker),
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        time.Now,
	}
}

// WithMetrics attaches a metrics sink to the registry and to every breaker
// it creates.
func (r *Registry) WithMetrics(sink MetricsSink) *Registry {
	r.metrics = sink
	return r
}

// WithClock overrides the time source for breakers created later. Only for tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Get returns the breaker for name, creating it on first lookup. Repeated
// lookups return the same instance.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.threshold, r.resetTimeout).WithClock(r.clock).withMetrics(r.metrics)
		r.breakers[name] = b
	}
	return b
}

// Do is shorthand for Get(name).Do(ctx, fn).
func (r *Registry) Do(ctx context.Context, name string, fn func(context.Context) error) (bool, error) {
	return r.Get(name).Do(ctx, fn)
}
