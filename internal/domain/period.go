package domain

import (
	"fmt"
	"time"
)

// Epoch is the lower bound of all-time windows.
var Epoch = time.Unix(0, 0).UTC()

// farFuture bounds lifetime rule windows.
var farFuture = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// DayWindow returns the local calendar day containing now, as
// [00:00:00.000, 23:59:59.999] converted to UTC.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	t := now.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start.UTC(), end.UTC()
}

// WeekWindow returns the local week containing now. Weeks start on Sunday
// 00:00:00.000 and end on Saturday 23:59:59.999.
func WeekWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	t := now.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day()-int(t.Weekday()), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 7).Add(-time.Millisecond)
	return start.UTC(), end.UTC()
}

// SnapshotWindow computes the aggregation window of a leaderboard period.
// All-time covers [Epoch, now].
func SnapshotWindow(p Period, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	switch p {
	case PeriodAllTime:
		return Epoch, now.UTC(), nil
	case PeriodDaily:
		s, e := DayWindow(now, loc)
		return s, e, nil
	case PeriodWeekly:
		s, e := WeekWindow(now, loc)
		return s, e, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", p)
}

// QuestPeriod returns the progress period for a quest cadence. One-time
// quests have no period: the key is OneTimePeriodKey and both bounds are nil.
func QuestPeriod(c Cadence, now time.Time, loc *time.Location) (key string, start, end *time.Time) {
	var s, e time.Time
	switch c {
	case CadenceDaily:
		s, e = DayWindow(now, loc)
	case CadenceWeekly:
		s, e = WeekWindow(now, loc)
	default:
		return OneTimePeriodKey, nil, nil
	}
	return s.In(loc).Format("2006-01-02"), &s, &e
}

// RuleWindowBounds returns the counting window of an XP rule cap and a
// stable key naming it. A capped rule without a window counts over the
// user's lifetime.
func RuleWindowBounds(w RuleWindow, now time.Time, loc *time.Location) (start, end time.Time, key string) {
	switch w {
	case WindowDaily:
		start, end = DayWindow(now, loc)
		return start, end, "d" + start.In(loc).Format("20060102")
	case WindowWeekly:
		start, end = WeekWindow(now, loc)
		return start, end, "w" + start.In(loc).Format("20060102")
	default:
		return Epoch, farFuture, "life"
	}
}

// NextWindowStart returns the first instant after a window ending at end.
func NextWindowStart(end time.Time) time.Time {
	return end.Add(time.Millisecond)
}
