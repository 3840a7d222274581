// File: timerq/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline-ordered timer queue on the monotonic clock. A binary heap keyed
// by (deadline, id) plus an id index gives O(log n) insert and cancel; a
// reader/writer lock lets the loop query expiry bounds with shared access
// while additions and cancellations from any goroutine take exclusive
// access.

package timerq

import (
	"container/heap"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/momentics/hioload-async/api"
)

// ErrTimerCanceled is the distinguished indication delivered to pending
// handlers by Clear. Plain Cancel removes the entry without delivery.
var ErrTimerCanceled = errors.New("timer canceled")

// ID identifies a scheduled timer. The zero ID never names a timer.
type ID uint64

// None is the reserved "no timer" id.
const None ID = 0

type entry struct {
	id       ID
	deadline time.Time
	handler  api.TimerHandler
	index    int // heap position, maintained by timerHeap
}

// timerHeap orders entries by deadline ascending, ties by id ascending.
type timerHeap []*entry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerQueue holds deadline→handler entries. The zero value is not usable;
// construct with NewTimerQueue.
type TimerQueue struct {
	mu        sync.RWMutex
	timers    timerHeap
	byID      map[ID]*entry
	nextID    ID
	collector api.Collector
}

// NewTimerQueue creates an empty timer queue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{
		byID:      make(map[ID]*entry),
		nextID:    1,
		collector: api.NopCollector{},
	}
}

// SetCollector installs a metrics collector. Wire during startup.
func (q *TimerQueue) SetCollector(c api.Collector) {
	if c == nil {
		c = api.NopCollector{}
	}
	q.collector = c
}

// AddAt schedules handler for the given deadline and returns its id.
func (q *TimerQueue) AddAt(deadline time.Time, handler api.TimerHandler) ID {
	if handler == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "timerq: nil handler"))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextID
	q.nextID++
	e := &entry{id: id, deadline: deadline, handler: handler}
	heap.Push(&q.timers, e)
	q.byID[id] = e
	return id
}

// AddAfter schedules handler to fire after d from now.
func (q *TimerQueue) AddAfter(d time.Duration, handler api.TimerHandler) ID {
	return q.AddAt(time.Now().Add(d), handler)
}

// Cancel removes the entry if present and reports whether it did. The
// handler is not invoked; cancellation delivery is Clear's business.
func (q *TimerQueue) Cancel(id ID) bool {
	q.mu.Lock()
	e, ok := q.byID[id]
	if ok {
		heap.Remove(&q.timers, e.index)
		delete(q.byID, id)
	}
	q.mu.Unlock()

	if ok {
		q.collector.TimerCanceled()
	}
	return ok
}

// NextExpiry returns the earliest deadline, if any.
func (q *TimerQueue) NextExpiry() (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.timers) == 0 {
		return time.Time{}, false
	}
	return q.timers[0].deadline, true
}

// TimeUntilNext returns the duration until the earliest deadline, zero if
// it is overdue, and false if no timer is pending.
func (q *TimerQueue) TimeUntilNext() (time.Duration, bool) {
	expiry, ok := q.NextExpiry()
	if !ok {
		return 0, false
	}
	d := time.Until(expiry)
	if d < 0 {
		d = 0
	}
	return d, true
}

// PopExpired removes and returns the handler of the earliest entry whose
// deadline has passed, or false when no entry is overdue.
func (q *TimerQueue) PopExpired() (api.TimerHandler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.timers) == 0 || q.timers[0].deadline.After(time.Now()) {
		return nil, false
	}
	e := heap.Pop(&q.timers).(*entry)
	delete(q.byID, e.id)
	return e.handler, true
}

// ProcessExpired pops and invokes overdue handlers with ordinary expiry
// until none remain or the clock passes now, so a burst of already-overdue
// timers cannot starve the caller.
func (q *TimerQueue) ProcessExpired(now time.Time) int {
	count := 0
	for {
		handler, ok := q.PopExpired()
		if !ok {
			break
		}
		if time.Now().After(now) {
			// Out of budget; the popped handler still runs, later ones wait
			// for the next pass.
			handler(nil)
			q.collector.TimerFired()
			count++
			break
		}
		handler(nil)
		q.collector.TimerFired()
		count++
	}
	return count
}

// Clear invokes every pending handler with ErrTimerCanceled and removes
// all entries.
func (q *TimerQueue) Clear() {
	q.mu.Lock()
	pending := make([]*entry, len(q.timers))
	copy(pending, q.timers)
	q.timers = nil
	q.byID = make(map[ID]*entry)
	q.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].deadline.Equal(pending[j].deadline) {
			return pending[i].id < pending[j].id
		}
		return pending[i].deadline.Before(pending[j].deadline)
	})
	for _, e := range pending {
		e.handler(ErrTimerCanceled)
	}
}

// Len returns the number of pending timers.
func (q *TimerQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.timers)
}

// Empty reports whether no timers are pending.
func (q *TimerQueue) Empty() bool {
	return q.Len() == 0
}
