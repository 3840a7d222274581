// File: execution/workqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-producer/multi-consumer FIFO of handlers. A single mutex paired
// with a condition variable carries the designed load; blocking takes need
// cross-goroutine wake-up, which the condition variable provides directly.

package execution

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-async/api"
)

var (
	// ErrQueueEmpty indicates a non-blocking or predicate-released take
	// found no handler. Transient; callers retry or wait.
	ErrQueueEmpty = errors.New("work queue is empty")

	// ErrQueueStopped indicates the queue has been stopped. Terminal for
	// this queue until Restart.
	ErrQueueStopped = errors.New("work queue is stopped")
)

// WorkQueue is a strict-FIFO queue of single-shot handlers with blocking
// and non-blocking takes and a stop signal. The zero value is not usable;
// construct with NewWorkQueue.
type WorkQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   *queue.Queue
	stopped atomic.Bool
}

// NewWorkQueue creates an empty, running queue.
func NewWorkQueue() *WorkQueue {
	q := &WorkQueue{items: queue.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends fn and wakes one waiter. Fails with ErrQueueStopped after
// Stop. A nil handler is a contract violation.
func (q *WorkQueue) Push(fn api.Handler) error {
	if fn == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "workqueue: push of nil handler"))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped.Load() {
		return ErrQueueStopped
	}
	q.items.Add(fn)
	q.cond.Signal()
	return nil
}

// TryPop returns the oldest handler without blocking. On an empty queue it
// reports ErrQueueStopped if stopped, ErrQueueEmpty otherwise.
func (q *WorkQueue) TryPop() (api.Handler, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop blocks until a handler is available or the queue is stopped. A stop
// releases every blocked consumer with ErrQueueStopped, even when handlers
// remain queued; they survive for Clear or Restart to deal with.
func (q *WorkQueue) Pop() (api.Handler, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 && !q.stopped.Load() {
		q.cond.Wait()
	}
	if q.stopped.Load() {
		return nil, ErrQueueStopped
	}
	return q.popLocked()
}

// PopFunc blocks until a handler is available, the queue is stopped, or
// release reports true. When released with no handler it returns
// ErrQueueEmpty; the loop uses this to wake on work-guard release without
// posting a spurious handler. release is evaluated under the queue lock.
func (q *WorkQueue) PopFunc(release func() bool) (api.Handler, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 && !q.stopped.Load() && !release() {
		q.cond.Wait()
	}
	if q.stopped.Load() {
		return nil, ErrQueueStopped
	}
	return q.popLocked()
}

func (q *WorkQueue) popLocked() (api.Handler, error) {
	if q.items.Length() == 0 {
		if q.stopped.Load() {
			return nil, ErrQueueStopped
		}
		return nil, ErrQueueEmpty
	}
	fn := q.items.Remove().(api.Handler)
	return fn, nil
}

// Stop marks the queue stopped and releases all blocked consumers.
// Idempotent. Queued handlers are retained, not executed.
func (q *WorkQueue) Stop() {
	q.mu.Lock()
	q.stopped.Store(true)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Restart drops all queued handlers without invoking them and re-arms the
// stopped flag.
func (q *WorkQueue) Restart() {
	q.mu.Lock()
	q.items = queue.New()
	q.stopped.Store(false)
	q.mu.Unlock()
}

// Clear drops all queued handlers without invoking them.
func (q *WorkQueue) Clear() {
	q.mu.Lock()
	q.items = queue.New()
	q.mu.Unlock()
}

// NotifyAll wakes every blocked consumer so it can re-evaluate its release
// predicate. Used on work-guard release.
func (q *WorkQueue) NotifyAll() {
	q.cond.Broadcast()
}

// Len returns the number of queued handlers.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Empty reports whether no handlers are queued.
func (q *WorkQueue) Empty() bool {
	return q.Len() == 0
}

// Stopped reports whether Stop has been called since the last Restart.
func (q *WorkQueue) Stopped() bool {
	return q.stopped.Load()
}
