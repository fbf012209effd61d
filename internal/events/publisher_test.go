package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
)

type capture struct {
	mu          sync.Mutex
	path        string
	contentType string
	body        map[string]any
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.path = r.URL.Path
		c.contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&c.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestPublishDeliversEnvelope(t *testing.T) {
	srv, c := newCaptureServer(t, http.StatusOK)
	p := NewPublisher(srv.URL+"/v1.0/publish/pubsub", domain.SourceBackend, 5*time.Second)

	ok := p.Publish(context.Background(), domain.TopicTasks, domain.TypeTaskCreated, "alice", map[string]any{
		"task_id": 42,
	})
	if !ok {
		t.Fatal("Publish returned false for 200 response")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "/v1.0/publish/pubsub/"+domain.TopicTasks {
		t.Errorf("path = %q", c.path)
	}
	if c.contentType != "application/cloudevents+json" {
		t.Errorf("Content-Type = %q", c.contentType)
	}
	if c.body["type"] != domain.TypeTaskCreated {
		t.Errorf("type = %v", c.body["type"])
	}
	if c.body["source"] != domain.SourceBackend {
		t.Errorf("source = %v", c.body["source"])
	}
	if c.body["specversion"] != domain.SpecVersion {
		t.Errorf("specversion = %v", c.body["specversion"])
	}
	if c.body["id"] == "" || c.body["id"] == nil {
		t.Error("id missing from envelope")
	}

	data, ok := c.body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T", c.body["data"])
	}
	if data["user_id"] != "alice" {
		t.Errorf("data.user_id = %v", data["user_id"])
	}
	if data["task_id"] != float64(42) {
		t.Errorf("data.task_id = %v", data["task_id"])
	}
	if data["timestamp"] == nil {
		t.Error("data.timestamp missing")
	}
}

func TestPublishFromOverridesSource(t *testing.T) {
	srv, c := newCaptureServer(t, http.StatusOK)
	p := NewPublisher(srv.URL, domain.SourceBackend, 5*time.Second)

	if !p.PublishFrom(context.Background(), domain.TopicReminders, domain.TypeReminderTriggered, domain.SourceHandler, "alice", nil) {
		t.Fatal("PublishFrom returned false")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.body["source"] != domain.SourceHandler {
		t.Errorf("source = %v, want %q", c.body["source"], domain.SourceHandler)
	}
}

func TestPublishReturnsFalseOnBrokerError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError} {
		srv, _ := newCaptureServer(t, status)
		p := NewPublisher(srv.URL, domain.SourceBackend, 5*time.Second)
		if p.Publish(context.Background(), domain.TopicTasks, domain.TypeTaskCreated, "alice", nil) {
			t.Errorf("Publish returned true for status %d", status)
		}
	}
}

func TestPublishReturnsFalseWhenBrokerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	p := NewPublisher(srv.URL, domain.SourceBackend, time.Second)
	if p.Publish(context.Background(), domain.TopicTasks, domain.TypeTaskCreated, "alice", nil) {
		t.Error("Publish returned true with no broker listening")
	}
}

func TestPublishHonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	p := NewPublisher(srv.URL, domain.SourceBackend, 50*time.Millisecond)

	start := time.Now()
	ok := p.Publish(context.Background(), domain.TopicTasks, domain.TypeTaskCreated, "alice", nil)
	if ok {
		t.Error("Publish returned true for a timed-out request")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Publish blocked for %v, timeout not applied", elapsed)
	}
}
