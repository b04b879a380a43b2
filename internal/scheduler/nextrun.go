package scheduler

import (
	"fmt"
	"time"
)

// NextRunAfter computes the earliest future instant at the schedule's
// time-of-day that falls on one of its weekdays. A time that already passed
// today rolls to the next matching day; the search never goes more than seven
// days forward.
func NextRunAfter(now time.Time, hhmm string, daysOfWeek []int) (time.Time, error) {
	var hours, minutes int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hours, &minutes); err != nil {
		return time.Time{}, fmt.Errorf("bad schedule time %q: %w", hhmm, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return time.Time{}, fmt.Errorf("bad schedule time %q", hhmm)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	for attempts := 0; !containsDay(daysOfWeek, int(next.Weekday())) && attempts < 7; attempts++ {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// RanThisMinute reports whether lastRun falls in the same wall-clock minute
// as now, which is the double-execution guard for the minute sweep.
func RanThisMinute(lastRun *time.Time, now time.Time) bool {
	if lastRun == nil {
		return false
	}
	last := lastRun.In(now.Location())
	return last.Year() == now.Year() &&
		last.Month() == now.Month() &&
		last.Day() == now.Day() &&
		last.Hour() == now.Hour() &&
		last.Minute() == now.Minute()
}
