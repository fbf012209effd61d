package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Publisher metrics
	publishAttemptsTotal *prometheus.CounterVec
	publishOutcomesTotal *prometheus.CounterVec
	publishDuration      prometheus.Histogram

	// Handler metrics
	handlerOutcomesTotal *prometheus.CounterVec
	handlerDuration      prometheus.Histogram
	duplicatesTotal      *prometheus.CounterVec
	dlqAlertsTotal       *prometheus.CounterVec

	// Circuit breaker metrics
	breakerTransitionsTotal *prometheus.CounterVec
	breakerRejectionsTotal  *prometheus.CounterVec

	// Reminder scheduler metrics
	ticksTotal          prometheus.Counter
	tickErrorsTotal     prometheus.Counter
	remindersFiredTotal prometheus.Counter
	tickDuration        prometheus.Histogram

	// EventBus metrics
	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initPublisherMetrics(reg)
	s.initHandlerMetrics(reg)
	s.initBreakerMetrics(reg)
	s.initSchedulerMetrics(reg)
	s.initEventBusMetrics(reg)
	return s
}

func (s *PrometheusSink) initPublisherMetrics(reg prometheus.Registerer) {
	s.publishAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_publisher_attempts_total",
		Help: "Total number of event publish attempts to the broker sidecar.",
	}, []string{"status_class"})

	s.publishOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_publisher_outcomes_total",
		Help: "Total number of publish outcomes.",
	}, []string{"outcome"})

	s.publishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskpulse_publisher_duration_seconds",
		Help:    "Broker publish request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	s.register(reg, s.publishAttemptsTotal, "taskpulse_publisher_attempts_total")
	s.register(reg, s.publishOutcomesTotal, "taskpulse_publisher_outcomes_total")
	s.register(reg, s.publishDuration, "taskpulse_publisher_duration_seconds")
}

func (s *PrometheusSink) initHandlerMetrics(reg prometheus.Registerer) {
	s.handlerOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_handler_outcomes_total",
		Help: "Total number of handled events by event type and result status.",
	}, []string{"event_type", "status"})

	s.handlerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskpulse_handler_duration_seconds",
		Help:    "Event handler execution time in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	s.duplicatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_handler_duplicates_total",
		Help: "Total number of duplicate event deliveries skipped by the idempotency ledger.",
	}, []string{"event_type"})

	s.dlqAlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_handler_dlq_alerts_total",
		Help: "Total number of dead-letter alerts raised for failed events.",
	}, []string{"event_type"})

	s.register(reg, s.handlerOutcomesTotal, "taskpulse_handler_outcomes_total")
	s.register(reg, s.handlerDuration, "taskpulse_handler_duration_seconds")
	s.register(reg, s.duplicatesTotal, "taskpulse_handler_duplicates_total")
	s.register(reg, s.dlqAlertsTotal, "taskpulse_handler_dlq_alerts_total")
}

func (s *PrometheusSink) initBreakerMetrics(reg prometheus.Registerer) {
	s.breakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions.",
	}, []string{"breaker", "state"})

	s.breakerRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_breaker_rejections_total",
		Help: "Total number of calls short-circuited by an open breaker.",
	}, []string{"breaker"})

	s.register(reg, s.breakerTransitionsTotal, "taskpulse_breaker_transitions_total")
	s.register(reg, s.breakerRejectionsTotal, "taskpulse_breaker_rejections_total")
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_scheduler_ticks_total",
		Help: "Total number of reminder scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_scheduler_tick_errors_total",
		Help: "Total number of reminder scheduler tick errors.",
	})
	s.remindersFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_scheduler_reminders_fired_total",
		Help: "Total number of reminders fired.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskpulse_scheduler_tick_duration_seconds",
		Help:    "Duration of each reminder scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	s.register(reg, s.ticksTotal, "taskpulse_scheduler_ticks_total")
	s.register(reg, s.tickErrorsTotal, "taskpulse_scheduler_tick_errors_total")
	s.register(reg, s.remindersFiredTotal, "taskpulse_scheduler_reminders_fired_total")
	s.register(reg, s.tickDuration, "taskpulse_scheduler_tick_duration_seconds")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskpulse_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "taskpulse_eventbus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "taskpulse_eventbus_emit_errors_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Publisher metrics implementation

func (s *PrometheusSink) PublishCompleted(statusClass string, duration time.Duration) {
	s.publishAttemptsTotal.WithLabelValues(statusClass).Inc()
	s.publishDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) PublishOutcome(outcome string) {
	s.publishOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Handler metrics implementation

func (s *PrometheusSink) HandlerCompleted(eventType, status string, duration time.Duration) {
	s.handlerOutcomesTotal.WithLabelValues(eventType, status).Inc()
	s.handlerDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DuplicateSkipped(eventType string) {
	s.duplicatesTotal.WithLabelValues(eventType).Inc()
}

func (s *PrometheusSink) DLQAlert(eventType string) {
	s.dlqAlertsTotal.WithLabelValues(eventType).Inc()
}

// Circuit breaker metrics implementation

func (s *PrometheusSink) BreakerStateChanged(name, state string) {
	s.breakerTransitionsTotal.WithLabelValues(name, state).Inc()
}

func (s *PrometheusSink) BreakerRejected(name string) {
	s.breakerRejectionsTotal.WithLabelValues(name).Inc()
}

// Reminder scheduler metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, remindersFired int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.remindersFiredTotal.Add(float64(remindersFired))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}
