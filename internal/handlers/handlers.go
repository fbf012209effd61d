// Package handlers consumes broker-delivered events and performs their side
// effects. Each event type has one handler; all of them share the same
// admission pipeline of circular-source refusal, duplicate claim, and
// required-field validation before any side effect runs.
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/djlord-it/taskpulse/internal/circuitbreaker"
	"github.com/djlord-it/taskpulse/internal/domain"
	"github.com/djlord-it/taskpulse/internal/idempotency"
	"github.com/djlord-it/taskpulse/internal/metrics"
	"github.com/djlord-it/taskpulse/internal/recurrence"
)

// Result statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Skip reasons.
const (
	ReasonDuplicate      = "duplicate"
	ReasonCircularSource = "circular_source"
)

// Actions reported in Result.Actions.
const (
	ActionReminderScheduled        = "reminder_scheduled"
	ActionReminderRescheduled      = "reminder_rescheduled"
	ActionRecurringInstanceCreated = "recurring_instance_created"
	ActionRemindersCancelled       = "reminders_cancelled"
	ActionJobScheduled             = "job_scheduled"
	ActionNotificationCreated      = "notification_created"
)

// Breaker names for the downstream dependencies handlers call.
const (
	BreakerScheduler     = "scheduler"
	BreakerNotifications = "notifications"
	BreakerTasksDB       = "tasks-db"
)

// Result is the outcome of handling one event.
type Result struct {
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
	Reason  string   `json:"reason,omitempty"`
}

func ok(actions ...string) Result {
	return Result{Status: StatusOK, Actions: actions}
}

func skipped(reason string) Result {
	return Result{Status: StatusSkipped, Actions: []string{}, Reason: reason}
}

func errored(reason string) Result {
	return Result{Status: StatusError, Actions: []string{}, Reason: reason}
}

// Publisher emits follow-up events. Satisfied by *events.Publisher.
type Publisher interface {
	PublishFrom(ctx context.Context, topic, eventType, source, userID string, data map[string]any) bool
}

// ReminderScheduler registers and cancels delayed reminder triggers.
type ReminderScheduler interface {
	Schedule(ctx context.Context, r domain.Reminder) error
	CancelForTask(ctx context.Context, taskID int64) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// TaskStore persists task rows. Optional; handlers degrade to no-ops for
// operations that need persistence when it is absent.
type TaskStore interface {
	CreateTask(ctx context.Context, task domain.Task) error
}

// Handlers routes events to their per-type handler.
type Handlers struct {
	ledger    idempotency.Ledger
	publisher Publisher
	scheduler ReminderScheduler
	notifier  Notifier
	tasks     TaskStore // may be nil
	breakers  *circuitbreaker.Registry
	clock     func() time.Time
	metrics   metrics.Sink
}

func New(ledger idempotency.Ledger, publisher Publisher, scheduler ReminderScheduler, notifier Notifier, breakers *circuitbreaker.Registry) *Handlers {
	return &Handlers{
		ledger:    ledger,
		publisher: publisher,
		scheduler: scheduler,
		notifier:  notifier,
		breakers:  breakers,
		clock:     time.Now,
		metrics:   metrics.NewNoopSink(),
	}
}

// WithTaskStore attaches a persistence handle for recurring task creation.
func (h *Handlers) WithTaskStore(tasks TaskStore) *Handlers {
	h.tasks = tasks
	return h
}

// WithClock overrides the time source. Only for tests.
func (h *Handlers) WithClock(clock func() time.Time) *Handlers {
	h.clock = clock
	return h
}

// WithMetrics attaches a metrics sink.
func (h *Handlers) WithMetrics(sink metrics.Sink) *Handlers {
	h.metrics = sink
	return h
}

// Dispatch handles one delivered envelope. It never panics: handler panics
// are converted to an error result and logged as a dead-letter alert, and
// the event stays unclaimed so the broker can redeliver it.
func (h *Handlers) Dispatch(ctx context.Context, env domain.Envelope) Result {
	start := h.clock()
	res := h.dispatch(ctx, env)
	h.metrics.HandlerCompleted(env.Type, res.Status, h.clock().Sub(start))
	return res
}

func (h *Handlers) dispatch(ctx context.Context, env domain.Envelope) (res Result) {
	if env.FromHandler() {
		log.Printf("handlers: refusing handler-sourced event id=%s type=%s", env.ID, env.Type)
		return skipped(ReasonCircularSource)
	}

	won, err := h.ledger.Claim(ctx, env.ID)
	if err != nil {
		log.Printf("handlers: claim id=%s: %v", env.ID, err)
		return errored("ledger unavailable")
	}
	if !won {
		log.Printf("handlers: duplicate event id=%s type=%s", env.ID, env.Type)
		h.metrics.DuplicateSkipped(env.Type)
		return skipped(ReasonDuplicate)
	}

	// A claim held for a failed event would block the retry that the
	// broker's redelivery exists to provide.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("DLQ ALERT: handler panic id=%s type=%s error=%v. Manual review required.", env.ID, env.Type, r)
			h.metrics.DLQAlert(env.Type)
			res = errored("handler panic")
		}
		if res.Status == StatusError {
			if err := h.ledger.Forget(ctx, env.ID); err != nil {
				log.Printf("handlers: forget id=%s: %v", env.ID, err)
			}
		}
	}()

	if err := validate(env.Type, env.Data); err != nil {
		log.Printf("handlers: invalid payload id=%s: %v", env.ID, err)
		return errored(err.Error())
	}

	switch env.Type {
	case domain.TypeTaskCreated:
		return h.handleTaskCreated(ctx, env)
	case domain.TypeTaskUpdated:
		return h.handleTaskUpdated(ctx, env)
	case domain.TypeTaskCompleted:
		return h.handleTaskCompleted(ctx, env)
	case domain.TypeTaskDeleted:
		return h.handleTaskDeleted(ctx, env)
	case domain.TypeReminderScheduled:
		return h.handleReminderScheduled(ctx, env)
	case domain.TypeReminderTriggered:
		return h.handleReminderTriggered(ctx, env)
	default:
		log.Printf("handlers: unknown event type id=%s type=%s", env.ID, env.Type)
		return errored("unknown event type")
	}
}

// requiredFields is the per-type payload schema.
var requiredFields = map[string][]string{
	domain.TypeTaskCreated:       {"task_id", "user_id"},
	domain.TypeTaskUpdated:       {"task_id", "user_id", "changed_fields"},
	domain.TypeTaskCompleted:     {"task_id", "user_id", "completed"},
	domain.TypeTaskDeleted:       {"task_id", "user_id"},
	domain.TypeReminderScheduled: {"task_id", "user_id", "remind_at"},
	domain.TypeReminderTriggered: {"task_id", "user_id", "task_title"},
}

func validate(eventType string, data map[string]any) error {
	for _, key := range requiredFields[eventType] {
		if _, present := data[key]; !present {
			return missingField(eventType, key)
		}
	}
	return nil
}

func (h *Handlers) handleTaskCreated(ctx context.Context, env domain.Envelope) Result {
	due, hasDue := timeField(env.Data, "due_date")
	if !hasDue || !due.After(h.clock()) {
		return ok()
	}
	if h.publishReminderScheduled(ctx, env, due) {
		return ok(ActionReminderScheduled)
	}
	return ok()
}

func (h *Handlers) handleTaskUpdated(ctx context.Context, env domain.Envelope) Result {
	changed, _ := stringSliceField(env.Data, "changed_fields")
	dueChanged := false
	for _, f := range changed {
		if f == "due_date" {
			dueChanged = true
			break
		}
	}
	due, hasDue := timeField(env.Data, "due_date")
	if !dueChanged || !hasDue {
		return ok()
	}
	if h.publishReminderScheduled(ctx, env, due) {
		return ok(ActionReminderRescheduled)
	}
	return ok()
}

func (h *Handlers) publishReminderScheduled(ctx context.Context, env domain.Envelope, remindAt time.Time) bool {
	taskID, _ := intField(env.Data, "task_id")
	userID, _ := stringField(env.Data, "user_id")
	return h.publisher.PublishFrom(ctx, domain.TopicReminders, domain.TypeReminderScheduled, domain.SourceHandler, userID, map[string]any{
		"task_id":    taskID,
		"user_id":    userID,
		"task_title": env.Data["title"],
		"remind_at":  remindAt.Format(time.RFC3339),
		"due_date":   remindAt.Format(time.RFC3339),
	})
}

func (h *Handlers) handleTaskCompleted(ctx context.Context, env domain.Envelope) Result {
	completed, _ := boolField(env.Data, "completed")
	recurring, _ := boolField(env.Data, "is_recurring")
	interval, hasInterval := stringField(env.Data, "recurring_interval")
	due, hasDue := timeField(env.Data, "due_date")

	if !completed || !recurring || !hasInterval || !hasDue {
		return ok()
	}
	if h.tasks == nil {
		log.Printf("handlers: no task store, skipping recurring instance for task=%v", env.Data["task_id"])
		return ok()
	}

	taskID, _ := intField(env.Data, "task_id")
	userID, _ := stringField(env.Data, "user_id")
	title, _ := stringField(env.Data, "title")
	description, _ := stringField(env.Data, "description")
	priority, _ := stringField(env.Data, "priority")
	tags, _ := stringSliceField(env.Data, "tags")

	nextDue := recurrence.NextDueDate(due, interval)
	next := domain.Task{
		UserID:            userID,
		Title:             title,
		Description:       description,
		Priority:          priority,
		Tags:              tags,
		DueDate:           &nextDue,
		IsRecurring:       true,
		RecurringInterval: interval,
	}

	executed, err := h.breakers.Do(ctx, BreakerTasksDB, func(ctx context.Context) error {
		return h.tasks.CreateTask(ctx, next)
	})
	if err != nil {
		log.Printf("handlers: create recurring instance task=%d: %v", taskID, err)
		return errored("create recurring instance")
	}
	if !executed {
		log.Printf("handlers: tasks-db breaker open, recurring instance for task=%d deferred", taskID)
		return ok()
	}
	log.Printf("handlers: recurring instance created from task=%d next_due=%s", taskID, nextDue.Format(time.RFC3339))
	return ok(ActionRecurringInstanceCreated)
}

func (h *Handlers) handleTaskDeleted(ctx context.Context, env domain.Envelope) Result {
	taskID, _ := intField(env.Data, "task_id")

	executed, err := h.breakers.Do(ctx, BreakerScheduler, func(ctx context.Context) error {
		return h.scheduler.CancelForTask(ctx, taskID)
	})
	if err != nil {
		log.Printf("handlers: cancel reminders task=%d: %v", taskID, err)
		return errored("cancel reminders")
	}
	if !executed {
		log.Printf("handlers: scheduler breaker open, cancel for task=%d skipped", taskID)
	}
	// Cancellation is idempotent, the action is reported whether or not a
	// reminder was ever scheduled for this task.
	return ok(ActionRemindersCancelled)
}

func (h *Handlers) handleReminderScheduled(ctx context.Context, env domain.Envelope) Result {
	remindAt, okTime := timeField(env.Data, "remind_at")
	if !okTime {
		return errored(missingField(env.Type, "remind_at").Error())
	}

	taskID, _ := intField(env.Data, "task_id")
	userID, _ := stringField(env.Data, "user_id")
	title, _ := stringField(env.Data, "task_title")
	due, hasDue := timeField(env.Data, "due_date")
	if !hasDue {
		due = remindAt
	}

	r := domain.Reminder{
		TaskID:    taskID,
		UserID:    userID,
		TaskTitle: title,
		RemindAt:  remindAt,
		DueDate:   due,
		CreatedAt: h.clock(),
	}

	executed, err := h.breakers.Do(ctx, BreakerScheduler, func(ctx context.Context) error {
		return h.scheduler.Schedule(ctx, r)
	})
	if err != nil {
		log.Printf("handlers: schedule reminder task=%d: %v", taskID, err)
		return errored("schedule reminder")
	}
	if !executed {
		log.Printf("handlers: scheduler breaker open, reminder for task=%d dropped", taskID)
		return ok()
	}
	return ok(ActionJobScheduled)
}

func (h *Handlers) handleReminderTriggered(ctx context.Context, env domain.Envelope) Result {
	taskID, _ := intField(env.Data, "task_id")
	userID, _ := stringField(env.Data, "user_id")
	title, _ := stringField(env.Data, "task_title")

	n := domain.Notification{
		UserID:    userID,
		TaskID:    taskID,
		Title:     "Task reminder",
		Body:      title,
		CreatedAt: h.clock(),
	}

	executed, err := h.breakers.Do(ctx, BreakerNotifications, func(ctx context.Context) error {
		return h.notifier.Notify(ctx, n)
	})
	if err != nil {
		log.Printf("handlers: notify user=%s task=%d: %v", userID, taskID, err)
		return errored("create notification")
	}
	if !executed {
		log.Printf("handlers: notifications breaker open, notification for task=%d dropped", taskID)
		return ok()
	}
	return ok(ActionNotificationCreated)
}
