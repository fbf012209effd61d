// Package statestore is an HTTP client for the broker sidecar's key-value
// state API, plus the conversation-state helpers built on it.
//
// The client runs in degraded mode when the sidecar is unreachable: reads
// return empty state and writes are dropped with a log line, so the rest of
// the service keeps working without conversation memory.
package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrInvalidKey is returned for state keys that do not follow the
// chat:{user}:{conversation} shape.
var ErrInvalidKey = errors.New("invalid state key")

// Client talks to {baseURL}/{key}, where baseURL already names the state
// store, for example "http://localhost:3500/v1.0/state/statestore".
type Client struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	degraded atomic.Bool
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// WithHTTPClient overrides the HTTP client. Only for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// Degraded reports whether the last sidecar call failed.
func (c *Client) Degraded() bool {
	return c.degraded.Load()
}

// GetState loads the value stored under key into out. A missing key or a
// degraded sidecar leaves out untouched and returns found=false.
func (c *Client) GetState(ctx context.Context, key string, out any) (found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+key, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.markDegraded(err)
		return false, nil
	}
	defer resp.Body.Close()
	c.degraded.Store(false)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read state: %w", err)
	}
	// The sidecar answers 200 with an empty body (or 204) for absent keys.
	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("get state %s: status %d", key, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

// SaveState stores value under key. In degraded mode the write is dropped.
func (c *Client) SaveState(ctx context.Context, key string, value any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The sidecar's bulk-save shape: a list of key/value entries.
	payload, err := json.Marshal([]map[string]any{{"key": key, "value": value}})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.markDegraded(err)
		return nil
	}
	defer resp.Body.Close()
	c.degraded.Store(false)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("save state %s: status %d", key, resp.StatusCode)
	}
	return nil
}

// DeleteState removes the value under key.
func (c *Client) DeleteState(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/"+key, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.markDegraded(err)
		return nil
	}
	defer resp.Body.Close()
	c.degraded.Store(false)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete state %s: status %d", key, resp.StatusCode)
	}
	return nil
}

// HealthCheck probes the sidecar with a read of a well-known key.
func (c *Client) HealthCheck(ctx context.Context) error {
	var ignored any
	if _, err := c.GetState(ctx, "health-probe", &ignored); err != nil {
		return err
	}
	if c.Degraded() {
		return errors.New("state store degraded")
	}
	return nil
}

func (c *Client) markDegraded(err error) {
	if !c.degraded.Swap(true) {
		log.Printf("statestore: degraded mode, sidecar unreachable: %v", err)
	}
}

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the stored value for one conversation key.
type ConversationState struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StateKey builds the storage key for a conversation.
func StateKey(userID, conversationID string) string {
	return fmt.Sprintf("chat:%s:%s", userID, conversationID)
}

// ValidateStateKey checks that key looks like chat:{user}:{conversation}
// with non-empty segments.
func ValidateStateKey(key string) error {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "chat" || parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func NewConversationState(userID, conversationID string, now time.Time) ConversationState {
	return ConversationState{
		UserID:         userID,
		ConversationID: conversationID,
		Messages:       []Message{},
		UpdatedAt:      now,
	}
}

// AddMessage appends a message and trims history to maxMessages, dropping
// the oldest first.
func (s *ConversationState) AddMessage(role, content string, now time.Time, maxMessages int) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	if maxMessages > 0 && len(s.Messages) > maxMessages {
		s.Messages = s.Messages[len(s.Messages)-maxMessages:]
	}
	s.UpdatedAt = now
}

// RecentMessages returns the last window messages, newest last.
func (s *ConversationState) RecentMessages(window int) []Message {
	if window <= 0 || len(s.Messages) <= window {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-window:]
}
