// Package postgres persists tasks, reminders, and notifications.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/djlord-it/taskpulse/internal/domain"
)

// Store implements handlers.TaskStore, handlers.Notifier, and
// scheduler.ReminderStore on PostgreSQL. Every operation runs under a
// bounded per-query timeout so a stalled database cannot wedge a tick loop
// or an event handler.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// HealthCheck verifies the database is reachable. Used by the health
// endpoint.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// CreateTask inserts a task row. The task's ID is ignored on input; rows
// are assigned IDs by the database.
func (s *Store) CreateTask(ctx context.Context, task domain.Task) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, queryInsertTask,
		task.UserID,
		task.Title,
		task.Description,
		task.Priority,
		pq.Array(task.Tags),
		task.DueDate,
		task.Completed,
		task.IsRecurring,
		task.RecurringInterval,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpsertReminder inserts the reminder or replaces the existing one for the
// same task.
func (s *Store) UpsertReminder(ctx context.Context, r domain.Reminder) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryUpsertReminder,
		r.TaskID,
		r.UserID,
		r.TaskTitle,
		r.RemindAt,
		r.DueDate,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reminder: %w", err)
	}
	return nil
}

// DueReminders returns up to limit reminders with remind_at at or before
// now, soonest first.
func (s *Store) DueReminders(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryDueReminders, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var due []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		if err := rows.Scan(&r.TaskID, &r.UserID, &r.TaskTitle, &r.RemindAt, &r.DueDate, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		due = append(due, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return due, nil
}

// DeleteReminder removes the reminder for a task. Deleting a task with no
// reminder is not an error.
func (s *Store) DeleteReminder(ctx context.Context, taskID int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, queryDeleteReminder, taskID); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// DeleteRemindersForTask is the cancellation entry point used by event
// handlers. Reminders are keyed by task, so it is the same delete.
func (s *Store) DeleteRemindersForTask(ctx context.Context, taskID int64) error {
	return s.DeleteReminder(ctx, taskID)
}

// Notify persists an in-app notification row.
func (s *Store) Notify(ctx context.Context, n domain.Notification) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertNotification,
		n.UserID,
		n.TaskID,
		n.Title,
		n.Body,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
