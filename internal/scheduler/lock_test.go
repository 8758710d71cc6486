package scheduler

import "testing"

func TestScheduleLocksTryAcquireIsExclusive(t *testing.T) {
	l := newScheduleLocks()

	if !l.TryAcquire("a") {
		t.Fatal("expected first acquire to succeed")
	}
	if l.TryAcquire("a") {
		t.Fatal("expected second acquire of the same id to fail while held")
	}
	if !l.TryAcquire("b") {
		t.Fatal("a different id should not be affected by a's lock")
	}
}

func TestScheduleLocksReleaseFreesTheLock(t *testing.T) {
	l := newScheduleLocks()
	l.TryAcquire("a")
	l.Release("a")

	if !l.TryAcquire("a") {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestScheduleLocksTryHeld(t *testing.T) {
	l := newScheduleLocks()
	if l.TryHeld("a") {
		t.Fatal("expected TryHeld to report false before any acquire")
	}
	l.TryAcquire("a")
	if !l.TryHeld("a") {
		t.Fatal("expected TryHeld to report true while held")
	}
	l.Release("a")
	if l.TryHeld("a") {
		t.Fatal("expected TryHeld to report false after release")
	}
}
