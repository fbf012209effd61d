// Package events delivers event envelopes to the broker sidecar over HTTP.
//
// Publishing is fire-and-forget from the caller's perspective: a Publisher
// never returns an error, only a boolean indicating whether the broker
// accepted the event. Delivery failures are logged and counted but must not
// fail the operation that emitted the event.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/metrics"
)

const contentTypeCloudEvents = "application/cloudevents+json"

// Publisher posts envelopes to {baseURL}/{topic}.
type Publisher struct {
	baseURL string
	source  string
	timeout time.Duration
	client  *http.Client
	clock   func() time.Time
	metrics metrics.Sink
}

// NewPublisher creates a Publisher for the given broker publish URL, for
// example "http://localhost:3500/v1.0/publish/pubsub". Events carry source
// as their origin unless PublishFrom overrides it.
func NewPublisher(baseURL, source string, timeout time.Duration) *Publisher {
	return &Publisher{
		baseURL: baseURL,
		source:  source,
		timeout: timeout,
		client:  &http.Client{},
		clock:   time.Now,
		metrics: metrics.NewNoopSink(),
	}
}

// WithClock overrides the time source. Only for tests.
func (p *Publisher) WithClock(clock func() time.Time) *Publisher {
	p.clock = clock
	return p
}

// WithMetrics attaches a metrics sink.
func (p *Publisher) WithMetrics(sink metrics.Sink) *Publisher {
	p.metrics = sink
	return p
}

// WithHTTPClient overrides the HTTP client. Only for tests.
func (p *Publisher) WithHTTPClient(client *http.Client) *Publisher {
	p.client = client
	return p
}

// Publish wraps data in an envelope and posts it to topic. It reports
// whether the broker accepted the event; false means the event is lost from
// this instance's perspective and the caller proceeds regardless.
func (p *Publisher) Publish(ctx context.Context, topic, eventType, userID string, data map[string]any) bool {
	return p.publish(ctx, topic, eventType, p.source, userID, data)
}

// PublishFrom is Publish with an explicit source, used by event handlers so
// their emissions are distinguishable from backend-originated events.
func (p *Publisher) PublishFrom(ctx context.Context, topic, eventType, source, userID string, data map[string]any) bool {
	return p.publish(ctx, topic, eventType, source, userID, data)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, source, userID string, data map[string]any) bool {
	start := p.clock()
	env := domain.NewEnvelope(eventType, source, userID, data, start)

	body, err := json.Marshal(env)
	if err != nil {
		log.Printf("publisher: marshal event type=%s: %v", eventType, err)
		p.record(0, err, start)
		return false
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, p.baseURL+"/"+topic, bytes.NewReader(body))
	if err != nil {
		log.Printf("publisher: create request topic=%s: %v", topic, err)
		p.record(0, err, start)
		return false
	}
	req.Header.Set("Content-Type", contentTypeCloudEvents)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("publisher: deliver topic=%s type=%s id=%s: %v", topic, eventType, env.ID, err)
		p.record(0, err, start)
		return false
	}
	defer resp.Body.Close()
	p.record(resp.StatusCode, nil, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("publisher: broker rejected topic=%s type=%s id=%s status=%d", topic, eventType, env.ID, resp.StatusCode)
		return false
	}

	log.Printf("publisher: delivered topic=%s type=%s id=%s", topic, eventType, env.ID)
	return true
}

func (p *Publisher) record(statusCode int, err error, start time.Time) {
	p.metrics.PublishCompleted(metrics.ClassifyStatus(statusCode, err), p.clock().Sub(start))
	if err == nil && statusCode >= 200 && statusCode < 300 {
		p.metrics.PublishOutcome(metrics.OutcomeSuccess)
	} else {
		p.metrics.PublishOutcome(metrics.OutcomeFailed)
	}
}
