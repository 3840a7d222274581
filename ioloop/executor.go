// Package ioloop
// Author: momentics
//
// Lightweight executor handle equating exactly one loop.

package ioloop

import (
	"github.com/momentics/hioload-async/api"
	"github.com/momentics/hioload-async/execution"
)

// Executor is a copyable submission handle for a Loop. Handles of the same
// loop compare equal with ==.
type Executor struct {
	loop *Loop
}

var _ api.Executor = Executor{}

// Execute implements api.Executor by deferring fn onto the loop.
func (e Executor) Execute(fn api.Handler) error {
	return e.loop.Post(fn)
}

// Context returns the loop behind this handle.
func (e Executor) Context() *Loop {
	return e.loop
}

// Schedule returns the awaitable form of a trip through this loop: its
// suspension posts the resumption as a handler and its resume is a no-op.
func (l *Loop) Schedule() execution.ScheduleOp {
	return execution.Schedule(l.Executor())
}
