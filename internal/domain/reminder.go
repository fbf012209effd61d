package domain

import "time"

// Reminder is a pending delayed-trigger job: at RemindAt the scheduler fires
// a reminder.triggered event for the task. A task has at most one reminder;
// rescheduling replaces it.
type Reminder struct {
	TaskID    int64
	UserID    string
	TaskTitle string
	RemindAt  time.Time
	DueDate   time.Time

	CreatedAt time.Time
}

// ReminderFired is emitted onto the in-process bus when a reminder comes due.
// The trigger dispatcher turns it into a reminder.triggered envelope.
type ReminderFired struct {
	TaskID    int64
	UserID    string
	TaskTitle string
	DueDate   time.Time
	FiredAt   time.Time
}

// Notification is an in-app notification created when a reminder fires.
type Notification struct {
	UserID    string
	TaskID    int64
	Title     string
	Body      string
	CreatedAt time.Time
}
