// Package dispatcher turns fired reminders into reminder.triggered events
// on the broker.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/djlord-it/taskpulse/internal/domain"
)

// Publisher emits events to the broker. Satisfied by *events.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType, userID string, data map[string]any) bool
}

type Dispatcher struct {
	publisher    Publisher
	drainTimeout time.Duration
}

func New(publisher Publisher, drainTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		publisher:    publisher,
		drainTimeout: drainTimeout,
	}
}

// Run consumes fired reminders from the channel until ctx is cancelled,
// then drains the remaining buffer with a bounded timeout so reminders
// fired just before shutdown still go out.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.ReminderFired) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ch)
			return
		case fired := <-ch:
			if err := d.Dispatch(ctx, fired); err != nil {
				log.Printf("dispatcher: error: %v", err)
			}
		}
	}
}

// drain uses a background context because the run context is already
// cancelled.
func (d *Dispatcher) drain(ch <-chan domain.ReminderFired) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			log.Printf("dispatcher: drain timeout, processed %d reminders", count)
			return
		case fired, open := <-ch:
			if !open {
				log.Printf("dispatcher: drain complete, processed %d reminders", count)
				return
			}
			if err := d.Dispatch(drainCtx, fired); err != nil {
				log.Printf("dispatcher: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("dispatcher: drain complete, processed %d reminders", count)
			}
			return
		}
	}
}

// Dispatch publishes one reminder.triggered event. Delivery is
// fire-and-forget; a broker rejection is logged and reported but the
// reminder is not requeued, the event consumer's retry path owns that.
func (d *Dispatcher) Dispatch(ctx context.Context, fired domain.ReminderFired) error {
	data := map[string]any{
		"task_id":    fired.TaskID,
		"user_id":    fired.UserID,
		"task_title": fired.TaskTitle,
		"due_date":   fired.DueDate.UTC().Format(time.RFC3339),
		"fired_at":   fired.FiredAt.UTC().Format(time.RFC3339),
	}

	if !d.publisher.Publish(ctx, domain.TopicReminders, domain.TypeReminderTriggered, fired.UserID, data) {
		return fmt.Errorf("publish reminder.triggered task=%d", fired.TaskID)
	}

	log.Printf("dispatcher: reminder.triggered task=%d user=%s", fired.TaskID, fired.UserID)
	return nil
}
