package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/handlers"
)

type mockDispatcher struct {
	mu     sync.Mutex
	calls  []domain.Envelope
	result handlers.Result
}

func (m *mockDispatcher) Dispatch(_ context.Context, env domain.Envelope) handlers.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, env)
	return m.result
}

type mockCheck struct {
	err error
}

func (m mockCheck) HealthCheck(context.Context) error { return m.err }

func deliver(t *testing.T, h *Handler, topic string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events/"+topic, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func envelopeBody(t *testing.T) []byte {
	t.Helper()
	env := domain.NewEnvelope(domain.TypeTaskCreated, domain.SourceBackend, "alice",
		map[string]any{"task_id": 7}, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func decodeDelivery(t *testing.T, w *httptest.ResponseRecorder) DeliveryResponse {
	t.Helper()
	var resp DeliveryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestDeliverEventSuccess(t *testing.T) {
	disp := &mockDispatcher{result: handlers.Result{Status: handlers.StatusOK}}
	h := NewHandler(disp, "pubsub")

	w := deliver(t, h, domain.TopicTasks, envelopeBody(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeDelivery(t, w); resp.Status != DeliverySuccess {
		t.Errorf("delivery status = %q, want SUCCESS", resp.Status)
	}
	if len(disp.calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(disp.calls))
	}
	if disp.calls[0].Type != domain.TypeTaskCreated {
		t.Errorf("dispatched type = %q", disp.calls[0].Type)
	}
}

func TestDeliverEventSkippedAcksSuccess(t *testing.T) {
	disp := &mockDispatcher{result: handlers.Result{Status: handlers.StatusSkipped, Reason: handlers.ReasonDuplicate}}
	h := NewHandler(disp, "pubsub")

	w := deliver(t, h, domain.TopicTasks, envelopeBody(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeDelivery(t, w); resp.Status != DeliverySuccess {
		t.Errorf("delivery status = %q, duplicates must not be redelivered", resp.Status)
	}
}

func TestDeliverEventErrorRequestsRetry(t *testing.T) {
	disp := &mockDispatcher{result: handlers.Result{Status: handlers.StatusError, Reason: "scheduler down"}}
	h := NewHandler(disp, "pubsub")

	w := deliver(t, h, domain.TopicTasks, envelopeBody(t))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if resp := decodeDelivery(t, w); resp.Status != DeliveryRetry {
		t.Errorf("delivery status = %q, want RETRY", resp.Status)
	}
}

func TestDeliverEventBadJSONDropped(t *testing.T) {
	disp := &mockDispatcher{result: handlers.Result{Status: handlers.StatusOK}}
	h := NewHandler(disp, "pubsub")

	w := deliver(t, h, domain.TopicTasks, []byte("{not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeDelivery(t, w); resp.Status != DeliveryDrop {
		t.Errorf("delivery status = %q, want DROP", resp.Status)
	}
	if len(disp.calls) != 0 {
		t.Error("undecodable event must not reach the dispatcher")
	}
}

func TestDeliverEventMissingIdentityDropped(t *testing.T) {
	disp := &mockDispatcher{result: handlers.Result{Status: handlers.StatusOK}}
	h := NewHandler(disp, "pubsub")

	w := deliver(t, h, domain.TopicTasks, []byte(`{"data":{"task_id":7}}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeDelivery(t, w); resp.Status != DeliveryDrop {
		t.Errorf("delivery status = %q, want DROP", resp.Status)
	}
}

func TestSubscriptions(t *testing.T) {
	h := NewHandler(&mockDispatcher{}, "pubsub")

	req := httptest.NewRequest(http.MethodGet, "/dapr/subscribe", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var subs []Subscription
	if err := json.NewDecoder(w.Body).Decode(&subs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(subs))
	}

	byTopic := make(map[string]Subscription)
	for _, s := range subs {
		if s.PubSubName != "pubsub" {
			t.Errorf("pubsubname = %q", s.PubSubName)
		}
		byTopic[s.Topic] = s
	}
	if byTopic[domain.TopicTasks].Route != "/events/"+domain.TopicTasks {
		t.Errorf("tasks route = %q", byTopic[domain.TopicTasks].Route)
	}
	if byTopic[domain.TopicReminders].Route != "/events/"+domain.TopicReminders {
		t.Errorf("reminders route = %q", byTopic[domain.TopicReminders].Route)
	}
}

func TestHealthSimple(t *testing.T) {
	h := NewHandler(&mockDispatcher{}, "pubsub")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHealthVerbose(t *testing.T) {
	h := NewHandler(&mockDispatcher{}, "pubsub").
		WithHealthCheck("database", mockCheck{}).
		WithHealthCheck("statestore", mockCheck{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Components["database"] != "healthy" {
		t.Errorf("database = %q", resp.Components["database"])
	}
	if resp.Components["statestore"] == "healthy" {
		t.Error("statestore reported healthy despite failing probe")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := NewHandler(&mockDispatcher{}, "pubsub")

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
