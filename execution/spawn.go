// File: execution/spawn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Continuation adaptation: tasks are initially suspended, single-shot
// producers of a value, chained through completion callbacks and driven on
// an executor. SpawnDetached drives a task to completion without a channel
// on which to report failure, so failure is absorbed.

package execution

import (
	"fmt"

	"github.com/momentics/hioload-async/api"
)

// Task is an initially suspended, single-shot computation producing T.
// A task does nothing until started on an executor; its step receives a
// completion callback invoked exactly once with the produced value or an
// error.
type Task[T any] struct {
	step func(exec api.Executor, complete func(T, error))
}

// NewTask wraps a plain producer. fn runs on the driving executor when the
// task is started; a panic inside fn completes the task with an error.
func NewTask[T any](fn func() (T, error)) Task[T] {
	return Task[T]{step: func(_ api.Executor, complete func(T, error)) {
		var (
			v   T
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panic: %v", r)
				}
			}()
			v, err = fn()
		}()
		complete(v, err)
	}}
}

// Start begins the suspended task on exec, delivering its outcome to
// complete exactly once. Most callers go through SpawnDetached instead.
func (t Task[T]) Start(exec api.Executor, complete func(T, error)) {
	t.step(exec, complete)
}

// NewTaskFunc wraps a step that completes through a callback, for
// computations whose result arrives from a later event (a timer, an I/O
// completion). The step must invoke complete exactly once.
func NewTaskFunc[T any](step func(exec api.Executor, complete func(T, error))) Task[T] {
	return Task[T]{step: step}
}

// Then chains a continuation: when t completes with a value, fn builds the
// next task, which is started through the executor so the continuation
// resumes on the loop rather than on the completing stack. An error from t
// short-circuits the chain.
func Then[T, U any](t Task[T], fn func(T) Task[U]) Task[U] {
	return Task[U]{step: func(exec api.Executor, complete func(U, error)) {
		t.step(exec, func(v T, err error) {
			if err != nil {
				var zero U
				complete(zero, err)
				return
			}
			next := fn(v)
			if postErr := exec.Execute(func() { next.step(exec, complete) }); postErr != nil {
				var zero U
				complete(zero, postErr)
			}
		})
	}}
}

// SpawnDetached starts t on exec and drives it to completion, discarding
// the produced value and any failure. Returns an error only when exec is
// already stopped and the task will never start.
func SpawnDetached[T any](exec api.Executor, t Task[T]) error {
	return exec.Execute(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn().Any("panic", r).Msg("detached task panic absorbed")
			}
		}()
		t.step(exec, func(T, error) {})
	})
}

// ScheduleOp is the awaitable form of an executor trip: suspension posts
// the resumption as a handler and resuming is a no-op. Ready is always
// false, forcing one pass through the loop.
type ScheduleOp struct {
	exec api.Executor
}

// Schedule returns an awaitable that resumes on exec.
func Schedule(exec api.Executor) ScheduleOp {
	return ScheduleOp{exec: exec}
}

// Ready reports whether suspension can be skipped. Always false.
func (ScheduleOp) Ready() bool { return false }

// OnSuspend posts resume to the executor. Resumptions posted after stop are
// dropped with the queue; the returned error reports that case.
func (op ScheduleOp) OnSuspend(resume api.Handler) error {
	return op.exec.Execute(resume)
}

// Resume is a no-op; the work happened on the executor.
func (ScheduleOp) Resume() {}
