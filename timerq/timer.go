// File: timerq/timer.go
// Author: momentics <momentics@gmail.com>
//
// Re-armable timer object over a TimerQueue. One asynchronous wait at a
// time; re-arming cancels the pending wait.

package timerq

import (
	"time"

	"github.com/momentics/hioload-async/api"
)

// Timer is a single re-armable deadline bound to a TimerQueue. Not safe
// for concurrent use; share through a strand if needed.
type Timer struct {
	queue  *TimerQueue
	expiry time.Time
	id     ID
}

// NewTimer creates an unarmed timer on q.
func NewTimer(q *TimerQueue) *Timer {
	if q == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "timerq: nil queue"))
	}
	return &Timer{queue: q, id: None}
}

// ExpiresAfter cancels any pending wait and sets the expiry to now+d.
// Returns the number of waits canceled (0 or 1).
func (t *Timer) ExpiresAfter(d time.Duration) int {
	n := t.Cancel()
	t.expiry = time.Now().Add(d)
	return n
}

// ExpiresAt cancels any pending wait and sets the expiry to deadline.
func (t *Timer) ExpiresAt(deadline time.Time) int {
	n := t.Cancel()
	t.expiry = deadline
	return n
}

// Expiry returns the configured deadline.
func (t *Timer) Expiry() time.Time {
	return t.expiry
}

// AsyncWait schedules handler for the configured expiry, canceling any
// previous wait first.
func (t *Timer) AsyncWait(handler api.TimerHandler) {
	t.Cancel()
	t.id = t.queue.AddAt(t.expiry, handler)
}

// Cancel removes the pending wait, if any, without delivering it. Returns
// the number of waits canceled (0 or 1).
func (t *Timer) Cancel() int {
	if t.id == None {
		return 0
	}
	canceled := t.queue.Cancel(t.id)
	t.id = None
	if canceled {
		return 1
	}
	return 0
}
