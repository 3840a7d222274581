// File: ioloop/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event loop. Multiple goroutines may call Run concurrently on the same
// loop; each participates independently in draining handlers, expiring
// timers and waiting on the reactor. The loop exits when stopped or when
// the work disjunction (queued handlers, work count, pending timers,
// registered descriptors) becomes false.

package ioloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-async/api"
	"github.com/momentics/hioload-async/execution"
	"github.com/momentics/hioload-async/internal/goid"
	"github.com/momentics/hioload-async/reactor"
	"github.com/momentics/hioload-async/timerq"
)

const (
	// defaultBatchLimit bounds how many queued handlers one iteration
	// drains before giving the reactor a turn.
	defaultBatchLimit = 64

	// defaultWaitBudget caps a single reactor wait so latency stays
	// bounded even without wakeups.
	defaultWaitBudget = 100 * time.Millisecond
)

// current maps goroutine id to the loop whose Run entry it is inside.
// Backs Dispatch's synchronous branch and Current.
var current sync.Map // int64 -> *Loop

// Options configures a Loop.
type Options struct {
	// BatchLimit bounds handlers drained per iteration. 0 means the
	// default (64).
	BatchLimit int

	// WaitBudget caps a single blocking reactor wait. 0 means the default
	// (100ms).
	WaitBudget time.Duration

	// Collector receives runtime metrics. nil means discard.
	Collector api.Collector

	// Reactor substitutes a custom backend. nil means the platform one.
	Reactor reactor.Reactor
}

// Loop alternates between executing queued handlers, expiring timers and
// waiting for I/O readiness.
type Loop struct {
	stopped    atomic.Bool
	workCount  atomic.Int64
	queue      *execution.WorkQueue
	demux      reactor.Reactor
	timers     *timerq.TimerQueue
	collector  api.Collector
	batchLimit int
	waitBudget time.Duration
	runners    atomic.Int64
}

// New creates a loop on the platform reactor.
func New() (*Loop, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a loop with explicit options.
func NewWithOptions(opts Options) (*Loop, error) {
	demux := opts.Reactor
	if demux == nil {
		var err error
		demux, err = reactor.New()
		if err != nil {
			return nil, err
		}
	}

	collector := opts.Collector
	if collector == nil {
		collector = api.NopCollector{}
	}
	batch := opts.BatchLimit
	if batch <= 0 {
		batch = defaultBatchLimit
	}
	budget := opts.WaitBudget
	if budget <= 0 {
		budget = defaultWaitBudget
	}

	l := &Loop{
		queue:      execution.NewWorkQueue(),
		demux:      demux,
		timers:     timerq.NewTimerQueue(),
		collector:  collector,
		batchLimit: batch,
		waitBudget: budget,
	}
	l.timers.SetCollector(collector)
	return l, nil
}

// Reactor exposes the readiness backend to the socket layer.
func (l *Loop) Reactor() reactor.Reactor {
	return l.demux
}

// Timers exposes the timer queue to the timer surface.
func (l *Loop) Timers() *timerq.TimerQueue {
	return l.timers
}

// enter records the calling goroutine as running this loop, saving any
// previously recorded loop so nested Run entries restore correctly.
func (l *Loop) enter() func() {
	id := goid.Get()
	prev, hadPrev := current.Load(id)
	current.Store(id, l)
	l.runners.Add(1)
	return func() {
		l.runners.Add(-1)
		if hadPrev {
			current.Store(id, prev)
		} else {
			current.Delete(id)
		}
	}
}

// Current returns the loop the calling goroutine is running inside, or nil.
func Current() *Loop {
	v, ok := current.Load(goid.Get())
	if !ok {
		return nil
	}
	return v.(*Loop)
}

// RunningInThisLoop reports whether the calling goroutine is inside a Run
// entry of this loop.
func (l *Loop) RunningInThisLoop() bool {
	return Current() == l
}

// hasPendingWork evaluates the exit disjunction.
func (l *Loop) hasPendingWork() bool {
	return !l.queue.Empty() ||
		l.workCount.Load() > 0 ||
		!l.timers.Empty() ||
		l.demux.Pending() > 0
}

// Run drives work until stopped or quiesced.
func (l *Loop) Run() {
	defer l.enter()()

	for !l.stopped.Load() {
		if !l.hasPendingWork() {
			return
		}

		l.postExpiredTimers()

		if n := l.drainBatch(); n > 0 {
			continue
		}

		if l.demux.Pending() == 0 && l.timers.Empty() {
			// Nothing for the reactor to watch; block on the queue until
			// work arrives, a guard releases, or a descriptor is armed.
			fn, err := l.queue.PopFunc(func() bool {
				return l.workCount.Load() == 0 || l.demux.Pending() > 0
			})
			switch err {
			case nil:
				l.runHandler(fn)
			case execution.ErrQueueStopped:
				return
			default:
				// Released by predicate; re-evaluate the exit condition.
			}
			continue
		}

		budget := l.waitBudget
		if d, ok := l.timers.TimeUntilNext(); ok && d < budget {
			budget = d
		}
		n, err := l.demux.RunOne(budget)
		if err != nil {
			logger.Warn().Err(err).Msg("reactor wait failed")
		}
		l.collector.ReactorEvents(n)
	}
}

// RunOne executes exactly one ready unit (a handler or an I/O completion)
// without unbounded blocking. Returns 1 when a unit was executed.
func (l *Loop) RunOne() int {
	defer l.enter()()

	l.postExpiredTimers()

	if fn, err := l.queue.TryPop(); err == nil {
		l.runHandler(fn)
		return 1
	}

	budget := l.waitBudget
	if d, ok := l.timers.TimeUntilNext(); ok && d < budget {
		budget = d
	}
	n, err := l.demux.RunOne(budget)
	if err != nil {
		logger.Warn().Err(err).Msg("reactor wait failed")
	}
	l.collector.ReactorEvents(n)
	l.postExpiredTimers()

	if fn, err := l.queue.TryPop(); err == nil {
		l.runHandler(fn)
		return 1
	}
	if n > 0 {
		return 1
	}
	return 0
}

// Poll drains everything that is ready without blocking and returns the
// number of handlers executed.
func (l *Loop) Poll() int {
	defer l.enter()()

	l.postExpiredTimers()
	n, err := l.demux.PollOne()
	if err != nil {
		logger.Warn().Err(err).Msg("reactor poll failed")
	}
	l.collector.ReactorEvents(n)

	count := 0
	for {
		fn, err := l.queue.TryPop()
		if err != nil {
			break
		}
		l.runHandler(fn)
		count++
	}
	return count
}

// PollOne executes at most one ready handler without blocking.
func (l *Loop) PollOne() int {
	defer l.enter()()

	l.postExpiredTimers()
	n, err := l.demux.PollOne()
	if err != nil {
		logger.Warn().Err(err).Msg("reactor poll failed")
	}
	l.collector.ReactorEvents(n)

	if fn, err := l.queue.TryPop(); err == nil {
		l.runHandler(fn)
		return 1
	}
	return 0
}

// Post enqueues fn for deferred execution, always deferred, and wakes any
// blocking reactor wait.
func (l *Loop) Post(fn api.Handler) error {
	if err := l.queue.Push(fn); err != nil {
		return err
	}
	l.demux.Wakeup()
	return nil
}

// Dispatch executes fn synchronously when the caller is inside a Run entry
// of this loop, and defers to Post otherwise. Dispatching synchronously on
// a stopped loop is a contract violation.
func (l *Loop) Dispatch(fn api.Handler) error {
	if fn == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "ioloop: dispatch of nil handler"))
	}
	if l.RunningInThisLoop() {
		if l.stopped.Load() {
			panic(api.NewError(api.ErrCodeStopped, "ioloop: dispatch on stopped loop"))
		}
		fn()
		return nil
	}
	return l.Post(fn)
}

// Wake nudges blocked waits so they re-evaluate pending work. The socket
// layer calls it after arming a registration from outside the loop.
func (l *Loop) Wake() {
	l.queue.NotifyAll()
	l.demux.Wakeup()
}

// Stop signals stop, releases blocked takes and wakes any reactor wait.
// Pending handlers are retained and survive into Restart.
func (l *Loop) Stop() {
	l.stopped.Store(true)
	l.queue.Stop()
	l.demux.Wakeup()
}

// Stopped reports whether the loop is stopped.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}

// Restart clears pending handlers and re-arms the stopped flag. Calling it
// on a running loop is a contract violation. Timers and reactor
// registrations are preserved.
func (l *Loop) Restart() {
	if !l.stopped.Load() {
		panic(api.NewError(api.ErrCodePrecondition, "ioloop: restart of a loop that is not stopped"))
	}
	l.queue.Restart()
	l.stopped.Store(false)
}

// Executor returns the lightweight submission handle for this loop. Two
// handles of the same loop compare equal.
func (l *Loop) Executor() Executor {
	return Executor{loop: l}
}

// Close asserts quiescence and releases the reactor. Closing a loop with
// workers inside Run or with outstanding work guards is a programming
// error.
func (l *Loop) Close() error {
	if n := l.runners.Load(); n != 0 {
		panic(api.NewError(api.ErrCodePrecondition, "ioloop: close with workers inside Run").
			WithContext("runners", n))
	}
	if n := l.workCount.Load(); n != 0 {
		panic(api.NewError(api.ErrCodePrecondition, "ioloop: close with outstanding work guards").
			WithContext("work_count", n))
	}
	return l.demux.Close()
}

// drainBatch executes up to batchLimit ready handlers, bounded so a full
// queue cannot starve the reactor.
func (l *Loop) drainBatch() int {
	count := 0
	for count < l.batchLimit {
		fn, err := l.queue.TryPop()
		if err != nil {
			break
		}
		l.runHandler(fn)
		count++
	}
	l.collector.QueueDepth(l.queue.Len())
	return count
}

// postExpiredTimers moves every overdue timer handler onto the work queue,
// binding the ordinary-expiry indication.
func (l *Loop) postExpiredTimers() {
	for {
		h, ok := l.timers.PopExpired()
		if !ok {
			return
		}
		handler := h
		if err := l.queue.Push(func() { handler(nil) }); err != nil {
			// Stopped mid-expiry; the handler is dropped with the queue.
			return
		}
		l.collector.TimerFired()
	}
}

// runHandler invokes fn, absorbing panics at the worker boundary so the
// worker continues.
func (l *Loop) runHandler(fn api.Handler) {
	start := time.Now()
	defer func() {
		l.collector.HandlerExecuted(time.Since(start))
		if r := recover(); r != nil {
			l.collector.HandlerPanic()
			logger.Warn().Any("panic", r).Msg("loop handler panic absorbed")
		}
	}()
	fn()
}

// addWork and removeWork back WorkGuard. The 1→0 transition must wake
// blocked waits so a waiting Run can re-evaluate the exit condition.
func (l *Loop) addWork() {
	l.workCount.Add(1)
}

func (l *Loop) removeWork() {
	if l.workCount.Add(-1) == 0 {
		l.queue.NotifyAll()
		l.demux.Wakeup()
	}
}

// WorkCount reports outstanding work guards. Introspection only.
func (l *Loop) WorkCount() int64 {
	return l.workCount.Load()
}
