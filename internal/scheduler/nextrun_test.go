package scheduler

import (
	"testing"
	"time"
)

func TestNextRunWithoutRunAtTimeIsASingleStep(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := anchor.Add(5 * time.Hour) // several ticks missed

	next, err := NextRun(15*time.Minute, anchor, nil, now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := anchor.Add(15 * time.Minute)
	if !next.Equal(want) {
		t.Fatalf("expected a single step to %s, got %s (no catch-up backfill)", want, next)
	}
}

func TestNextRunSubHourIgnoresRunAtTime(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	runAt := "03:00"

	next, err := NextRun(10*time.Minute, anchor, &runAt, anchor)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if !next.Equal(anchor.Add(10 * time.Minute)) {
		t.Fatalf("run_at_time should be ignored below 1h interval, got %s", next)
	}
}

func TestNextRunWithRunAtTimeFindsTodaysSlot(t *testing.T) {
	runAt := "02:00"
	anchor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	next, err := NextRun(6*time.Hour, anchor, &runAt, now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextRunWithRunAtTimeAdvancesThroughTodaysSlots(t *testing.T) {
	runAt := "02:00"
	anchor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC) // past the 02:00 slot, before the 08:00 one

	next, err := NextRun(6*time.Hour, anchor, &runAt, now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) // 02:00 + 6h
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestNextRunWithRunAtTimeWrapsToNextDay(t *testing.T) {
	runAt := "02:00"
	anchor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	next, err := NextRun(24*time.Hour, anchor, &runAt, now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected wrap to next day's slot %s, got %s", want, next)
	}
}

func TestNextRunExactSlotMatchIsInclusive(t *testing.T) {
	runAt := "02:00"
	anchor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC) // exactly on a slot

	next, err := NextRun(6*time.Hour, anchor, &runAt, now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if !next.Equal(now) {
		t.Fatalf("expected the exact due slot %s to be returned, got %s", now, next)
	}
}

func TestNextRunInvalidIntervalErrors(t *testing.T) {
	if _, err := NextRun(0, time.Now(), nil, time.Now()); err == nil {
		t.Fatal("expected an error for a zero interval")
	}
}

func TestNextRunInvalidRunAtTimeErrors(t *testing.T) {
	bad := "not-a-time"
	anchor := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := NextRun(time.Hour, anchor, &bad, anchor); err == nil {
		t.Fatal("expected an error for a malformed run_at_time")
	}
}
