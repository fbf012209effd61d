// Package api is the HTTP surface the broker sidecar calls into: the
// subscription listing, the per-topic event delivery endpoint, and health.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/handlers"
)

// Delivery statuses understood by the broker. RETRY asks for redelivery,
// DROP acknowledges without processing.
const (
	DeliverySuccess = "SUCCESS"
	DeliveryRetry   = "RETRY"
	DeliveryDrop    = "DROP"
)

// maxRequestBodySize caps delivered event payloads (1MB).
const maxRequestBodySize = 1 << 20

// Dispatcher handles one delivered event. Satisfied by *handlers.Handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, env domain.Envelope) handlers.Result
}

// HealthChecker is one named component probe for verbose /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Subscription tells the broker which topics to deliver and where.
type Subscription struct {
	PubSubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

type Handler struct {
	dispatcher Dispatcher
	pubsubName string
	checks     map[string]HealthChecker
}

func NewHandler(dispatcher Dispatcher, pubsubName string) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		pubsubName: pubsubName,
		checks:     make(map[string]HealthChecker),
	}
}

// WithHealthCheck registers a named component probe for verbose /health
// responses.
func (h *Handler) WithHealthCheck(name string, check HealthChecker) *Handler {
	h.checks[name] = check
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/dapr/subscribe" && r.Method == http.MethodGet:
		h.subscriptions(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodPost:
		h.deliverEvent(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// subscriptions answers the broker's programmatic subscription query. Every
// topic routes back to the matching /events/{topic} endpoint.
func (h *Handler) subscriptions(w http.ResponseWriter, _ *http.Request) {
	subs := []Subscription{
		{PubSubName: h.pubsubName, Topic: domain.TopicTasks, Route: "/events/" + domain.TopicTasks},
		{PubSubName: h.pubsubName, Topic: domain.TopicReminders, Route: "/events/" + domain.TopicReminders},
	}
	writeJSON(w, http.StatusOK, subs)
}

// DeliveryResponse is the ack shape the broker expects from a delivery.
type DeliveryResponse struct {
	Status string `json:"status"`
}

func (h *Handler) deliverEvent(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimPrefix(r.URL.Path, "/events/")
	if topic == "" || strings.Contains(topic, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		// Malformed payloads can never succeed on redelivery, drop them.
		log.Printf("api: undecodable event on topic=%s: %v", topic, err)
		writeJSON(w, http.StatusBadRequest, DeliveryResponse{Status: DeliveryDrop})
		return
	}
	if env.ID == "" || env.Type == "" {
		log.Printf("api: event missing id or type on topic=%s", topic)
		writeJSON(w, http.StatusBadRequest, DeliveryResponse{Status: DeliveryDrop})
		return
	}

	res := h.dispatcher.Dispatch(r.Context(), env)
	switch res.Status {
	case handlers.StatusOK, handlers.StatusSkipped:
		writeJSON(w, http.StatusOK, DeliveryResponse{Status: DeliverySuccess})
	default:
		log.Printf("api: handler error topic=%s id=%s type=%s reason=%s", topic, env.ID, env.Type, res.Reason)
		writeJSON(w, http.StatusInternalServerError, DeliveryResponse{Status: DeliveryRetry})
	}
}

// HealthResponse is the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || len(h.checks) == 0 {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = "unhealthy: " + err.Error()
		} else {
			resp.Components[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, resp)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
