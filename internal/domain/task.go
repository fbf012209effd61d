package domain

import "time"

// Recurrence interval keywords. Anything else is treated as a cron
// expression first and falls back to daily.
const (
	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)

// Task is a row in the tasks table. Only the fields the event pipeline
// touches are modeled here; the CRUD API owns the rest of the schema.
type Task struct {
	ID                int64
	UserID            string
	Title             string
	Description       string
	Priority          string
	Tags              []string
	DueDate           *time.Time
	Completed         bool
	IsRecurring       bool
	RecurringInterval string

	CreatedAt time.Time
	UpdatedAt time.Time
}
