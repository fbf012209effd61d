package domain

import (
	"testing"
	"time"
)

func TestNewEnvelope_RequiredFields(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	env := NewEnvelope(TypeTaskCreated, SourceBackend, "user123", map[string]any{"task_id": int64(1)}, now)

	if env.SpecVersion != "1.0" {
		t.Errorf("specversion: expected 1.0, got %q", env.SpecVersion)
	}
	if env.Type != TypeTaskCreated {
		t.Errorf("type: expected %q, got %q", TypeTaskCreated, env.Type)
	}
	if env.Source != SourceBackend {
		t.Errorf("source: expected %q, got %q", SourceBackend, env.Source)
	}
	if env.ID == "" {
		t.Error("id must not be empty")
	}
	if env.PartitionKey != "user123" {
		t.Errorf("partitionkey: expected user123, got %q", env.PartitionKey)
	}
	if env.Data["user_id"] != "user123" {
		t.Errorf("data.user_id: expected user123, got %v", env.Data["user_id"])
	}
	if env.Data["timestamp"] == nil {
		t.Error("data.timestamp must be set")
	}
	if env.Data["task_id"] != int64(1) {
		t.Errorf("data.task_id: expected 1, got %v", env.Data["task_id"])
	}
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	now := time.Now().UTC()
	a := NewEnvelope(TypeTaskCreated, SourceBackend, "u1", nil, now)
	b := NewEnvelope(TypeTaskCreated, SourceBackend, "u1", nil, now)
	if a.ID == b.ID {
		t.Errorf("expected distinct ids, both were %q", a.ID)
	}
}

func TestNewEnvelope_DoesNotMutateInput(t *testing.T) {
	data := map[string]any{"task_id": int64(7)}
	NewEnvelope(TypeTaskDeleted, SourceBackend, "u1", data, time.Now())
	if _, ok := data["user_id"]; ok {
		t.Error("input payload must not be mutated")
	}
}

func TestFromHandler(t *testing.T) {
	env := NewEnvelope(TypeReminderScheduled, SourceHandler, "u1", nil, time.Now())
	if !env.FromHandler() {
		t.Error("expected handler-sourced envelope")
	}
	env = NewEnvelope(TypeTaskCreated, SourceBackend, "u1", nil, time.Now())
	if env.FromHandler() {
		t.Error("backend source must not be detected as handler")
	}
}

func TestTopicFor(t *testing.T) {
	if got := TopicFor(TypeTaskCompleted); got != TopicTasks {
		t.Errorf("task.completed: expected %q, got %q", TopicTasks, got)
	}
	if got := TopicFor(TypeReminderTriggered); got != TopicReminders {
		t.Errorf("reminder.triggered: expected %q, got %q", TopicReminders, got)
	}
}
