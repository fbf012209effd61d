// Package scheduler fires reminders when their remind-at time arrives.
//
// Reminders are persisted through a ReminderStore and polled on a fixed
// tick. A fired reminder is emitted to the event bus first and deleted from
// the store only after the emit succeeds, so a full bus leaves it pending
// for the next tick instead of dropping it.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/metrics"
)

// ReminderStore persists pending reminders.
type ReminderStore interface {
	UpsertReminder(ctx context.Context, r domain.Reminder) error
	DueReminders(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error)
	DeleteReminder(ctx context.Context, taskID int64) error
	DeleteRemindersForTask(ctx context.Context, taskID int64) error
}

// Emitter hands fired reminders to the dispatcher.
type Emitter interface {
	Emit(ctx context.Context, fired domain.ReminderFired) error
}

type Config struct {
	TickInterval time.Duration
	BatchSize    int
}

type Scheduler struct {
	config  Config
	store   ReminderStore
	emitter Emitter
	clock   func() time.Time
	metrics metrics.Sink
}

func New(config Config, store ReminderStore, emitter Emitter) *Scheduler {
	return &Scheduler{
		config:  config,
		store:   store,
		emitter: emitter,
		clock:   time.Now,
		metrics: metrics.NewNoopSink(),
	}
}

// WithClock overrides the time source. Only for tests.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// WithMetrics attaches a metrics sink.
func (s *Scheduler) WithMetrics(sink metrics.Sink) *Scheduler {
	s.metrics = sink
	return s
}

// Schedule registers or replaces the reminder for a task. Rescheduling the
// same task overwrites the previous remind-at time.
func (s *Scheduler) Schedule(ctx context.Context, r domain.Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}
	if err := s.store.UpsertReminder(ctx, r); err != nil {
		return fmt.Errorf("upsert reminder: %w", err)
	}
	log.Printf("scheduler: reminder scheduled task=%d remind_at=%s", r.TaskID, r.RemindAt.Format(time.RFC3339))
	return nil
}

// CancelForTask removes any pending reminder for the task. Cancelling a
// task with no reminder is a no-op.
func (s *Scheduler) CancelForTask(ctx context.Context, taskID int64) error {
	if err := s.store.DeleteRemindersForTask(ctx, taskID); err != nil {
		return fmt.Errorf("delete reminders: %w", err)
	}
	log.Printf("scheduler: reminders cancelled task=%d", taskID)
	return nil
}

// Run polls for due reminders until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, tick=%s batch=%d", s.config.TickInterval, s.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.ProcessTick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

// ProcessTick fires every reminder due as of now, up to the batch size.
func (s *Scheduler) ProcessTick(ctx context.Context) error {
	s.metrics.TickStarted()
	start := s.clock()
	fired, err := s.processTick(ctx)
	s.metrics.TickCompleted(s.clock().Sub(start), fired, err)
	return err
}

func (s *Scheduler) processTick(ctx context.Context) (int, error) {
	now := s.clock().UTC()

	due, err := s.store.DueReminders(ctx, now, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("due reminders: %w", err)
	}

	fired := 0
	for _, r := range due {
		if err := s.fire(ctx, r, now); err != nil {
			log.Printf("scheduler: fire task=%d: %v", r.TaskID, err)
			continue
		}
		fired++
	}
	return fired, nil
}

// fire emits first and deletes second. If the emit fails the reminder stays
// in the store and is retried next tick; if the delete fails the reminder
// may fire twice, which the consumer's idempotency ledger absorbs.
func (s *Scheduler) fire(ctx context.Context, r domain.Reminder, now time.Time) error {
	event := domain.ReminderFired{
		TaskID:    r.TaskID,
		UserID:    r.UserID,
		TaskTitle: r.TaskTitle,
		DueDate:   r.DueDate,
		FiredAt:   now,
	}

	if err := s.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("emit: %w", err)
	}

	if err := s.store.DeleteReminder(ctx, r.TaskID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	log.Printf("scheduler: fired task=%d remind_at=%s", r.TaskID, r.RemindAt.Format(time.RFC3339))
	return nil
}
