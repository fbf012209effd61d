package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
)

type mockEmitter struct {
	mu     sync.Mutex
	events []domain.ReminderFired
	err    error
}

func (m *mockEmitter) Emit(_ context.Context, fired domain.ReminderFired) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, fired)
	return nil
}

func (m *mockEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func reminder(taskID int64, remindAt time.Time) domain.Reminder {
	return domain.Reminder{
		TaskID:    taskID,
		UserID:    "alice",
		TaskTitle: "water plants",
		RemindAt:  remindAt,
		DueDate:   remindAt,
		CreatedAt: remindAt.Add(-24 * time.Hour),
	}
}

func newScheduler(store ReminderStore, emitter Emitter, now time.Time) *Scheduler {
	return New(Config{TickInterval: time.Second, BatchSize: 100}, store, emitter).
		WithClock(func() time.Time { return now })
}

func TestProcessTickFiresDueReminders(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	emitter := &mockEmitter{}
	s := newScheduler(store, emitter, now)

	ctx := context.Background()
	if err := s.Schedule(ctx, reminder(1, now.Add(-time.Minute))); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule(ctx, reminder(2, now.Add(time.Hour))); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := s.ProcessTick(ctx); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if emitter.count() != 1 {
		t.Fatalf("fired = %d, want 1", emitter.count())
	}
	if got := emitter.events[0]; got.TaskID != 1 || got.UserID != "alice" || !got.FiredAt.Equal(now) {
		t.Errorf("fired event = %+v", got)
	}
	if store.Len() != 1 {
		t.Errorf("pending reminders = %d, want 1 (the future one)", store.Len())
	}
}

func TestProcessTickAtExactRemindAt(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	emitter := &mockEmitter{}
	s := newScheduler(store, emitter, now)

	ctx := context.Background()
	if err := s.Schedule(ctx, reminder(1, now)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.ProcessTick(ctx); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if emitter.count() != 1 {
		t.Fatalf("a reminder due exactly now must fire, fired = %d", emitter.count())
	}
}

func TestScheduleOverwritesExistingReminder(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	emitter := &mockEmitter{}
	s := newScheduler(store, emitter, now)

	ctx := context.Background()
	if err := s.Schedule(ctx, reminder(1, now.Add(-time.Minute))); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// Reschedule into the future before the tick runs.
	if err := s.Schedule(ctx, reminder(1, now.Add(time.Hour))); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := s.ProcessTick(ctx); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if emitter.count() != 0 {
		t.Fatalf("rescheduled reminder fired early, fired = %d", emitter.count())
	}
}

func TestCancelForTaskIsIdempotent(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	s := newScheduler(store, &mockEmitter{}, now)

	ctx := context.Background()
	if err := s.Schedule(ctx, reminder(1, now.Add(-time.Minute))); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.CancelForTask(ctx, 1); err != nil {
		t.Fatalf("CancelForTask: %v", err)
	}
	if err := s.CancelForTask(ctx, 1); err != nil {
		t.Fatalf("second CancelForTask: %v", err)
	}
	if err := s.CancelForTask(ctx, 99); err != nil {
		t.Fatalf("CancelForTask for unknown task: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("pending reminders = %d, want 0", store.Len())
	}
}

func TestEmitFailureKeepsReminderPending(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	emitter := &mockEmitter{err: errors.New("buffer full")}
	s := newScheduler(store, emitter, now)

	ctx := context.Background()
	if err := s.Schedule(ctx, reminder(1, now.Add(-time.Minute))); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := s.ProcessTick(ctx); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if store.Len() != 1 {
		t.Fatal("reminder must stay pending when emit fails")
	}

	// The bus drains, the next tick retries.
	emitter.mu.Lock()
	emitter.err = nil
	emitter.mu.Unlock()
	if err := s.ProcessTick(ctx); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if emitter.count() != 1 {
		t.Fatalf("fired = %d after retry, want 1", emitter.count())
	}
	if store.Len() != 0 {
		t.Errorf("pending reminders = %d, want 0", store.Len())
	}
}

func TestProcessTickHonorsBatchSize(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	emitter := &mockEmitter{}
	s := New(Config{TickInterval: time.Second, BatchSize: 2}, store, emitter).
		WithClock(func() time.Time { return now })

	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		if err := s.Schedule(ctx, reminder(i, now.Add(-time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	if err := s.ProcessTick(ctx); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if emitter.count() != 2 {
		t.Fatalf("fired = %d, want batch size 2", emitter.count())
	}
	if store.Len() != 3 {
		t.Errorf("pending reminders = %d, want 3", store.Len())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := NewMemoryStore()
	s := New(Config{TickInterval: 10 * time.Millisecond, BatchSize: 10}, store, &mockEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
