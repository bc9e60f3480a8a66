package auth

import "time"

// LockoutWindow is a rolling window lockout policy. The window opens on the
// first failed attempt and lasts Duration, a success or an expired window
// resets the counter.
type LockoutWindow struct {
	Duration    time.Duration
	MaxAttempts int
}

// Active reports whether a failure window opened at firstFailedAt is still running at now
func (w LockoutWindow) Active(firstFailedAt *time.Time, now time.Time) bool {
	if firstFailedAt == nil {
		return false
	}
	return !firstFailedAt.Before(now.Add(-w.Duration))
}

// Locked reports whether attempts inside an active window reached MaxAttempts
func (w LockoutWindow) Locked(attempts int, firstFailedAt *time.Time, now time.Time) bool {
	if !w.Active(firstFailedAt, now) {
		return false
	}
	return attempts >= w.MaxAttempts
}

// RecordFailure returns the counter state after a failed attempt at now.
func (w LockoutWindow) RecordFailure(attempts int, firstFailedAt *time.Time, now time.Time) (int, *time.Time) {
	if !w.Active(firstFailedAt, now) {
		start := now
		return 1, &start
	}
	return attempts + 1, firstFailedAt
}

// NextUpdatedAt returns max(now, prev+1ms) so updated_at never moves
// backwards or repeats, even when clocks skew between writers.
func NextUpdatedAt(prev *time.Time, now time.Time) time.Time {
	if prev == nil {
		return now
	}
	floor := prev.Add(time.Millisecond)
	if now.Before(floor) {
		return floor
	}
	return now
}
