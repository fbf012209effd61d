package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
)

// MemoryStore is an in-process ReminderStore keyed by task ID. Used when no
// database is configured and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	reminders map[int64]domain.Reminder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reminders: make(map[int64]domain.Reminder)}
}

func (m *MemoryStore) UpsertReminder(_ context.Context, r domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[r.TaskID] = r
	return nil
}

func (m *MemoryStore) DueReminders(_ context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []domain.Reminder
	for _, r := range m.reminders {
		if !r.RemindAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RemindAt.Before(due[j].RemindAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryStore) DeleteReminder(_ context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reminders, taskID)
	return nil
}

func (m *MemoryStore) DeleteRemindersForTask(ctx context.Context, taskID int64) error {
	return m.DeleteReminder(ctx, taskID)
}

// Len reports the number of pending reminders. Only for tests.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reminders)
}
