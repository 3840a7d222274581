//go:build unix && !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

// File: reactor/reactor_poll.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) fallback for Unix platforms without epoll or kqueue. The poll
// set is rebuilt per wait from the registration table; a self-pipe
// provides cross-goroutine wakeup.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-async/api"
)

type fdEntry struct {
	ops     Op
	handler api.CompletionHandler
}

type pollReactor struct {
	wakeR   int
	wakeW   int
	mu      sync.Mutex
	entries map[int]*fdEntry
	stopped atomic.Bool
	closed  atomic.Bool
}

// New creates the platform reactor.
func New() (Reactor, error) {
	var pipeFDs [2]int
	if err := unix.Pipe(pipeFDs[:]); err != nil {
		return nil, fmt.Errorf("wakeup pipe: %w", err)
	}
	unix.SetNonblock(pipeFDs[0], true)
	unix.SetNonblock(pipeFDs[1], true)

	return &pollReactor{
		wakeR:   pipeFDs[0],
		wakeW:   pipeFDs[1],
		entries: make(map[int]*fdEntry),
	}, nil
}

// Register arms a one-shot registration, replacing any existing one.
func (r *pollReactor) Register(fd uintptr, ops Op, handler api.CompletionHandler) error {
	if r.closed.Load() {
		return ErrReactorClosed
	}
	if handler == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "reactor: nil completion handler"))
	}

	r.mu.Lock()
	r.entries[int(fd)] = &fdEntry{ops: ops, handler: handler}
	r.mu.Unlock()
	r.Wakeup()
	return nil
}

// Unregister removes a registration. Silent on absence.
func (r *pollReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	delete(r.entries, int(fd))
	r.mu.Unlock()
	return nil
}

// Modify replaces the operation mask, keeping the handler.
func (r *pollReactor) Modify(fd uintptr, ops Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, present := r.entries[int(fd)]
	if !present {
		return api.ErrNotFound
	}
	e.ops = ops
	return nil
}

// RunOne waits up to timeout and delivers at most one batch of events.
func (r *pollReactor) RunOne(timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, ErrReactorClosed
	}
	if r.stopped.Load() {
		return 0, nil
	}

	r.mu.Lock()
	fds := make([]unix.PollFd, 0, len(r.entries)+1)
	fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
	for fd, e := range r.entries {
		var events int16
		read, write := e.ops.readiness()
		if read {
			events |= unix.POLLIN
		}
		if write {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	r.mu.Unlock()

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	var n int
	var err error
	for {
		n, err = unix.Poll(fds, timeoutMs)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	processed := 0
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		if int(pfd.Fd) == r.wakeR {
			r.drainWakeup()
			continue
		}

		r.mu.Lock()
		e, ok := r.entries[int(pfd.Fd)]
		if ok {
			delete(r.entries, int(pfd.Fd))
		}
		r.mu.Unlock()
		if !ok {
			continue
		}

		var opErr error
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			opErr = socketError(int(pfd.Fd))
		}
		e.handler(opErr, 0)
		processed++
	}
	return processed, nil
}

// PollOne is RunOne with a zero timeout.
func (r *pollReactor) PollOne() (int, error) {
	return r.RunOne(0)
}

// Wakeup makes a concurrent blocking wait return promptly.
func (r *pollReactor) Wakeup() {
	_, _ = unix.Write(r.wakeW, []byte{1})
}

func (r *pollReactor) drainWakeup() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Pending returns the number of registered descriptors.
func (r *pollReactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop makes subsequent waits return immediately.
func (r *pollReactor) Stop() {
	r.stopped.Store(true)
	r.Wakeup()
}

// Stopped reports the stop flag.
func (r *pollReactor) Stopped() bool {
	return r.stopped.Load()
}

// Close releases the wakeup pipe and drops remaining registrations.
func (r *pollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	r.entries = make(map[int]*fdEntry)
	r.mu.Unlock()
	unix.Close(r.wakeR)
	return unix.Close(r.wakeW)
}

func socketError(fd int) error {
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soErr != 0 {
		return unix.Errno(soErr)
	}
	return ErrHangup
}
