package scheduler

import (
	"fmt"
	"time"
)

// timeOfDayLayout is the wall-clock format a Schedule's run_at_time field
// uses: "HH:MM", always interpreted in UTC.
const timeOfDayLayout = "15:04"

// NextRun computes a schedule's next due instant (spec §4.6).
//
// interval is IntervalSeconds as a Duration; anchor is last_run_at if set,
// otherwise created_at. runAtTime is the optional "HH:MM" wall-clock anchor,
// only meaningful when interval >= 1 hour.
//
// Without runAtTime: next = anchor + interval, exactly as specified — a
// single step forward, not a catch-up search. A schedule that missed many
// ticks while the server was down fires once on the next tick (since the
// resulting next_run_at will already be <= now) rather than backfilling
// every missed interval.
//
// With runAtTime and interval >= 1h: next is the smallest instant at or
// after max(anchor, now) whose UTC wall clock falls on one of runAtTime's
// daily slots (runAtTime, runAtTime+interval, runAtTime+2*interval, ...
// within a day, wrapping to the next day's runAtTime once a day's slots are
// exhausted).
func NextRun(interval time.Duration, anchor time.Time, runAtTime *string, now time.Time) (time.Time, error) {
	if interval <= 0 {
		return time.Time{}, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}

	if runAtTime == nil || interval < time.Hour {
		return anchor.Add(interval), nil
	}

	t, err := time.Parse(timeOfDayLayout, *runAtTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid run_at_time %q: %w", *runAtTime, err)
	}

	floor := anchor
	if now.After(floor) {
		floor = now
	}
	floor = floor.UTC()

	day := time.Date(floor.Year(), floor.Month(), floor.Day(), 0, 0, 0, 0, time.UTC)
	todayAnchor := day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)

	for {
		for k := 0; ; k++ {
			slot := todayAnchor.Add(time.Duration(k) * interval)
			if slot.Sub(todayAnchor) >= 24*time.Hour {
				break
			}
			if !slot.Before(floor) {
				return slot, nil
			}
		}
		todayAnchor = todayAnchor.Add(24 * time.Hour)
	}
}
