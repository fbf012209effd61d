package domain

import (
	"time"

	"github.com/google/uuid"
)

// SpecVersion is the protocol version stamped on every envelope.
const SpecVersion = "1.0"

// Event sources. SourceHandler is reserved for events emitted by event
// handlers themselves; handlers refuse to process envelopes carrying it,
// which breaks handler -> event -> handler amplification loops.
const (
	SourceBackend = "taskpulse-backend"
	SourceHandler = "handler"
)

// Broker topics.
const (
	TopicTasks     = "tasks"
	TopicReminders = "reminders"
)

// Event types.
const (
	TypeTaskCreated       = "task.created"
	TypeTaskUpdated       = "task.updated"
	TypeTaskCompleted     = "task.completed"
	TypeTaskDeleted       = "task.deleted"
	TypeReminderScheduled = "reminder.scheduled"
	TypeReminderTriggered = "reminder.triggered"
)

// Envelope is the CloudEvents-style wrapper around every published event.
// The partition key always equals the acting user's identifier so the broker
// keeps one user's events in delivery order.
type Envelope struct {
	SpecVersion  string         `json:"specversion"`
	Type         string         `json:"type"`
	Source       string         `json:"source"`
	ID           string         `json:"id"`
	Time         time.Time      `json:"time"`
	PartitionKey string         `json:"partitionkey"`
	Data         map[string]any `json:"data"`
}

// NewEnvelope builds an envelope with a fresh unique id. The payload is
// copied and always carries user_id and timestamp alongside the
// event-specific fields.
func NewEnvelope(eventType, source, userID string, data map[string]any, now time.Time) Envelope {
	payload := make(map[string]any, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["user_id"] = userID
	payload["timestamp"] = now.UTC().Format(time.RFC3339Nano)

	return Envelope{
		SpecVersion:  SpecVersion,
		Type:         eventType,
		Source:       source,
		ID:           uuid.NewString(),
		Time:         now.UTC(),
		PartitionKey: userID,
		Data:         payload,
	}
}

// FromHandler reports whether the envelope was emitted by an event handler.
func (e Envelope) FromHandler() bool {
	return e.Source == SourceHandler
}

// TopicFor maps an event type to its broker topic.
func TopicFor(eventType string) string {
	switch eventType {
	case TypeReminderScheduled, TypeReminderTriggered:
		return TopicReminders
	default:
		return TopicTasks
	}
}
