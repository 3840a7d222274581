// File: ioloop/workguard.go
// Author: momentics <momentics@gmail.com>
//
// Work guard: a reference-count token on the loop's outstanding-work
// count. While any guard owns a count the loop's Run does not exit on an
// empty queue. Reset is idempotent; the 1→0 transition wakes blocked
// waits so a waiting Run re-evaluates its exit condition.

package ioloop

import "github.com/momentics/hioload-async/api"

// WorkGuard contributes exactly one to a loop's work count while it owns
// work. The zero value is inert.
type WorkGuard struct {
	loop *Loop
	owns bool
}

// NewWorkGuard creates a guard owning one unit of work on l.
func NewWorkGuard(l *Loop) *WorkGuard {
	l.addWork()
	return &WorkGuard{loop: l, owns: true}
}

// Reset releases the owned count. Idempotent; the guard is inert after.
func (g *WorkGuard) Reset() {
	if !g.owns {
		return
	}
	g.owns = false
	g.loop.removeWork()
}

// OwnsWork reports whether the guard still contributes to the work count.
func (g *WorkGuard) OwnsWork() bool {
	return g.owns
}

// Loop returns the guarded loop, also after Reset. Panics on the zero-value
// guard, which has no loop.
func (g *WorkGuard) Loop() *Loop {
	if g.loop == nil {
		panic(api.NewError(api.ErrCodePrecondition, "workguard: guard owns no loop"))
	}
	return g.loop
}
