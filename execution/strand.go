// File: execution/strand.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Strand: a serializing executor. Handlers submitted through the same
// strand never run concurrently and run in submission order, while the
// strand shares workers with the rest of the pool. The drain trampoline is
// re-posted to the underlying executor and holds the shared state, so it
// stays valid even if the strand surface is dropped before the drain ends.

package execution

import (
	"sync/atomic"

	"github.com/momentics/hioload-async/api"
	"github.com/momentics/hioload-async/internal/goid"
)

// maxDispatchDepth bounds synchronous re-entry through Dispatch before
// falling back to Post, preventing stack overflow.
const maxDispatchDepth = 100

// strandState outlives the Strand surface; every pending trampoline holds
// a reference.
type strandState struct {
	queue    *WorkQueue
	draining atomic.Bool
	running  atomic.Int64 // goroutine id of the current drainer, goid.None otherwise
	depth    int          // dispatch recursion depth, touched only by the drainer
}

// Strand serializes handlers over an underlying executor.
type Strand struct {
	exec  api.Executor
	state *strandState
}

// NewStrand creates a strand over exec.
func NewStrand(exec api.Executor) *Strand {
	if exec == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "strand: nil executor"))
	}
	return &Strand{
		exec:  exec,
		state: &strandState{queue: NewWorkQueue()},
	}
}

// Executor returns the underlying executor.
func (s *Strand) Executor() api.Executor {
	return s.exec
}

// Execute implements api.Executor; it is equivalent to Post.
func (s *Strand) Execute(fn api.Handler) error {
	return s.Post(fn)
}

// Post appends fn to the strand's queue. When the draining flag transitions
// false to true the drain trampoline is scheduled on the underlying
// executor; otherwise the running drainer picks fn up.
func (s *Strand) Post(fn api.Handler) error {
	if err := s.state.queue.Push(fn); err != nil {
		return err
	}

	if s.state.draining.CompareAndSwap(false, true) {
		state := s.state
		if err := s.exec.Execute(func() { drain(state) }); err != nil {
			// Underlying executor is stopped; the handler stays queued and
			// is dropped with the queue.
			state.draining.Store(false)
			return err
		}
	}
	return nil
}

// Dispatch executes fn synchronously when the caller is the current drainer
// and the recursion cap has not been reached; otherwise it behaves as Post.
// Panics from fn propagate after the depth counter is restored.
func (s *Strand) Dispatch(fn api.Handler) error {
	if fn == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "strand: dispatch of nil handler"))
	}

	if s.RunningInThisGoroutine() && s.state.depth < maxDispatchDepth {
		s.state.depth++
		defer func() { s.state.depth-- }()
		fn()
		return nil
	}
	return s.Post(fn)
}

// RunningInThisGoroutine reports whether the calling goroutine is currently
// draining this strand.
func (s *Strand) RunningInThisGoroutine() bool {
	return s.state.running.Load() == goid.Get()
}

// drain executes queued handlers until the queue is observed empty twice
// under the double-check release pattern. At most one drain runs per strand
// at any time; between two consecutive handlers of the same strand the
// queue mutex provides a happens-before edge.
func drain(state *strandState) {
	self := goid.Get()
	state.running.Store(self)

	for {
		fn, err := state.queue.TryPop()
		if err == nil {
			invoke(state, fn)
			continue
		}

		state.running.Store(goid.None)
		state.draining.Store(false)

		// The queue may have been filled between TryPop and the release
		// store. Re-check and try to reacquire the draining flag.
		if state.queue.Empty() {
			return
		}
		if !state.draining.CompareAndSwap(false, true) {
			// Another goroutine took over.
			return
		}
		state.running.Store(self)
	}
}

// invoke runs fn and absorbs panics so the strand keeps serving, exactly as
// a single-threaded event loop survives a thrown exception by catching it
// at the loop boundary.
func invoke(state *strandState, fn api.Handler) {
	defer func() {
		state.depth = 0
		if r := recover(); r != nil {
			logger.Warn().Any("panic", r).Msg("strand handler panic absorbed")
		}
	}()
	fn()
}
