package scheduler

import "sync"

// scheduleLocks enforces "at most one concurrent dump per schedule" (spec
// §4.4, §4.6) via a non-blocking per-schedule lock: TryAcquire never waits,
// it reports whether the caller now holds the lock.
type scheduleLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newScheduleLocks() *scheduleLocks {
	return &scheduleLocks{held: make(map[string]bool)}
}

// TryAcquire reports whether scheduleID's lock was free and is now held by
// the caller. A false return means another run for this schedule is
// already in flight; the tick loop skips this schedule for this cycle.
func (l *scheduleLocks) TryAcquire(scheduleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[scheduleID] {
		return false
	}
	l.held[scheduleID] = true
	return true
}

// Release frees scheduleID's lock. Callers must call this exactly once per
// successful TryAcquire, typically via defer.
func (l *scheduleLocks) Release(scheduleID string) {
	l.mu.Lock()
	delete(l.held, scheduleID)
	l.mu.Unlock()
}

// TryHeld reports whether scheduleID is currently locked, without acquiring
// it. Used by run-now's default lock_policy (refuse with BUSY) to decide
// whether to reject a manual trigger outright.
func (l *scheduleLocks) TryHeld(scheduleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[scheduleID]
}
