// Package timer provides one-shot cancelable timers. A Timer runs its
// callback once after the delay unless canceled first; canceling a timer
// that already fired, or canceling twice, is a safe no-op.
package timer

import "time"

// Timer is a handle to a pending one-shot callback.
type Timer struct {
	t *time.Timer
}

// After schedules fn to run once after d on its own goroutine.
func After(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, fn)}
}

// Cancel stops the timer if it has not fired yet. Safe on a nil handle,
// after firing, and when called more than once.
func (t *Timer) Cancel() {
	if t == nil {
		return
	}
	t.t.Stop()
}
