// Package notify delivers user-facing notifications.
package notify

import (
	"context"
	"log"

	"github.com/djlord-it/taskpulse/internal/domain"
)

// LogNotifier writes notifications to the process log. It stands in when no
// delivery channel is configured and never fails.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	log.Printf("notify: user=%s task=%d title=%q body=%q", n.UserID, n.TaskID, n.Title, n.Body)
	return nil
}
