// Package recurrence computes the next due date for recurring tasks.
//
// An interval is one of the named presets (daily, weekly, monthly) or a
// five-field cron expression. Unknown intervals fall back to daily so a
// malformed value never strands a recurring task.
package recurrence

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/djlord-it/taskpulse/internal/domain"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDueDate returns the due date following from for the given interval.
// The time of day and location of from are preserved for the named presets.
func NextDueDate(from time.Time, interval string) time.Time {
	switch interval {
	case domain.IntervalDaily:
		return from.AddDate(0, 0, 1)
	case domain.IntervalWeekly:
		return from.AddDate(0, 0, 7)
	case domain.IntervalMonthly:
		return nextMonth(from)
	}

	if sched, err := cronParser.Parse(interval); err == nil {
		return sched.Next(from)
	}
	return from.AddDate(0, 0, 1)
}

// nextMonth advances by one calendar month, clamping the day so Jan 31
// yields Feb 28 (or 29) rather than overflowing into March.
func nextMonth(from time.Time) time.Time {
	year, month, day := from.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, from.Location())
	if max := daysIn(firstOfNext.Year(), firstOfNext.Month()); day > max {
		day = max
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
