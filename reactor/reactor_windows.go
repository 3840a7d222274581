//go:build windows

// File: reactor/reactor_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows IOCP adaptation. IOCP is completion-based rather than
// readiness-based; the adaptation presents the same one-shot
// register/deliver surface, keyed by the native handle. The socket layer
// owns the per-operation overlapped state it posts.
// PostQueuedCompletionStatus provides cross-goroutine wakeup.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-async/api"
)

const wakeKey = ^uintptr(0)

type fdEntry struct {
	ops     Op
	handler api.CompletionHandler
}

type iocpReactor struct {
	port       windows.Handle
	mu         sync.Mutex
	entries    map[uintptr]*fdEntry
	associated map[uintptr]struct{}
	stopped    atomic.Bool
	closed     atomic.Bool
}

// New creates the platform reactor.
func New() (Reactor, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("create completion port: %w", err)
	}
	return &iocpReactor{
		port:       port,
		entries:    make(map[uintptr]*fdEntry),
		associated: make(map[uintptr]struct{}),
	}, nil
}

// Register associates the handle with the completion port on first use and
// arms a one-shot entry keyed by the handle.
func (r *iocpReactor) Register(fd uintptr, ops Op, handler api.CompletionHandler) error {
	if r.closed.Load() {
		return ErrReactorClosed
	}
	if handler == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "reactor: nil completion handler"))
	}

	r.mu.Lock()
	_, assoc := r.associated[fd]
	r.entries[fd] = &fdEntry{ops: ops, handler: handler}
	if !assoc {
		r.associated[fd] = struct{}{}
	}
	r.mu.Unlock()

	if !assoc {
		if _, err := windows.CreateIoCompletionPort(windows.Handle(fd), r.port, fd, 0); err != nil {
			r.mu.Lock()
			delete(r.entries, fd)
			delete(r.associated, fd)
			r.mu.Unlock()
			return fmt.Errorf("associate handle: %w", err)
		}
	}
	return nil
}

// Unregister removes the one-shot entry. The port association persists for
// the handle's lifetime; completions for absent entries are dropped.
func (r *iocpReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	delete(r.entries, fd)
	r.mu.Unlock()
	return nil
}

// Modify replaces the operation mask, keeping the handler.
func (r *iocpReactor) Modify(fd uintptr, ops Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, present := r.entries[fd]
	if !present {
		return api.ErrNotFound
	}
	e.ops = ops
	return nil
}

// RunOne dequeues at most one completion within timeout and delivers it
// with its error and transferred byte count.
func (r *iocpReactor) RunOne(timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, ErrReactorClosed
	}
	if r.stopped.Load() {
		return 0, nil
	}

	timeoutMs := uint32(windows.INFINITE)
	if timeout >= 0 {
		timeoutMs = uint32(timeout / time.Millisecond)
	}

	var (
		qty        uint32
		key        uintptr
		overlapped *windows.Overlapped
	)
	waitErr := windows.GetQueuedCompletionStatus(r.port, &qty, &key, &overlapped, timeoutMs)
	if waitErr != nil && overlapped == nil {
		if waitErr == windows.WAIT_TIMEOUT {
			return 0, nil
		}
		return 0, fmt.Errorf("get queued completion: %w", waitErr)
	}

	if key == wakeKey {
		return 0, nil
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if !ok {
		return 0, nil
	}

	e.handler(waitErr, int(qty))
	return 1, nil
}

// PollOne is RunOne with a zero timeout.
func (r *iocpReactor) PollOne() (int, error) {
	return r.RunOne(0)
}

// Wakeup posts a sentinel completion to unblock a concurrent wait.
func (r *iocpReactor) Wakeup() {
	_ = windows.PostQueuedCompletionStatus(r.port, 0, wakeKey, nil)
}

// Pending returns the number of armed entries.
func (r *iocpReactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop makes subsequent waits return immediately.
func (r *iocpReactor) Stop() {
	r.stopped.Store(true)
	r.Wakeup()
}

// Stopped reports the stop flag.
func (r *iocpReactor) Stopped() bool {
	return r.stopped.Load()
}

// Close releases the completion port and drops remaining entries.
func (r *iocpReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	r.entries = make(map[uintptr]*fdEntry)
	r.associated = make(map[uintptr]struct{})
	r.mu.Unlock()
	return windows.CloseHandle(r.port)
}
