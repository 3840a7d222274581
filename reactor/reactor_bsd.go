//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// File: reactor/reactor_bsd.go
// Author: momentics <momentics@gmail.com>
//
// kqueue backend for macOS and the BSDs. EV_ONESHOT enforces single
// delivery; a self-pipe registered with EV_CLEAR provides cross-goroutine
// wakeup.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-async/api"
)

const maxEvents = 128

type fdEntry struct {
	ops     Op
	handler api.CompletionHandler
}

type kqueueReactor struct {
	kq      int
	wakeR   int
	wakeW   int
	mu      sync.Mutex
	entries map[int]*fdEntry
	stopped atomic.Bool
	closed  atomic.Bool
}

// New creates the platform reactor.
func New() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}

	var pipeFDs [2]int
	if err := unix.Pipe(pipeFDs[:]); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("wakeup pipe: %w", err)
	}
	unix.SetNonblock(pipeFDs[0], true)
	unix.SetNonblock(pipeFDs[1], true)

	r := &kqueueReactor{
		kq:      kq,
		wakeR:   pipeFDs[0],
		wakeW:   pipeFDs[1],
		entries: make(map[int]*fdEntry),
	}

	var change unix.Kevent_t
	unix.SetKevent(&change, r.wakeR, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{change}, nil, nil); err != nil {
		r.closePipes()
		unix.Close(kq)
		return nil, fmt.Errorf("kevent add wakeup: %w", err)
	}
	return r, nil
}

func (r *kqueueReactor) changesFor(fd int, ops Op, add bool) []unix.Kevent_t {
	read, write := ops.readiness()
	flags := unix.EV_ADD | unix.EV_ONESHOT
	if !add {
		flags = unix.EV_DELETE
	}

	var changes []unix.Kevent_t
	if read {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_READ, flags)
		changes = append(changes, kev)
	}
	if write {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, kev)
	}
	return changes
}

// Register arms a one-shot registration, replacing any existing one.
func (r *kqueueReactor) Register(fd uintptr, ops Op, handler api.CompletionHandler) error {
	if r.closed.Load() {
		return ErrReactorClosed
	}
	if handler == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "reactor: nil completion handler"))
	}

	r.mu.Lock()
	prev, present := r.entries[int(fd)]
	r.entries[int(fd)] = &fdEntry{ops: ops, handler: handler}
	r.mu.Unlock()

	if present {
		// Drop the previous filters before re-arming; stale EV_ONESHOT
		// filters would deliver into the replaced registration.
		_, _ = unix.Kevent(r.kq, r.changesFor(int(fd), prev.ops, false), nil, nil)
	}
	if _, err := unix.Kevent(r.kq, r.changesFor(int(fd), ops, true), nil, nil); err != nil {
		r.mu.Lock()
		delete(r.entries, int(fd))
		r.mu.Unlock()
		return fmt.Errorf("kevent add: %w", err)
	}
	return nil
}

// Unregister removes a registration. Silent on absence.
func (r *kqueueReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	e, present := r.entries[int(fd)]
	delete(r.entries, int(fd))
	r.mu.Unlock()

	if present {
		_, _ = unix.Kevent(r.kq, r.changesFor(int(fd), e.ops, false), nil, nil)
	}
	return nil
}

// Modify replaces the operation mask, keeping the handler.
func (r *kqueueReactor) Modify(fd uintptr, ops Op) error {
	r.mu.Lock()
	e, present := r.entries[int(fd)]
	var prevOps Op
	if present {
		prevOps = e.ops
		e.ops = ops
	}
	r.mu.Unlock()

	if !present {
		return api.ErrNotFound
	}
	_, _ = unix.Kevent(r.kq, r.changesFor(int(fd), prevOps, false), nil, nil)
	if _, err := unix.Kevent(r.kq, r.changesFor(int(fd), ops, true), nil, nil); err != nil {
		return fmt.Errorf("kevent mod: %w", err)
	}
	return nil
}

// RunOne waits up to timeout and delivers at most one batch of events.
func (r *kqueueReactor) RunOne(timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, ErrReactorClosed
	}
	if r.stopped.Load() {
		return 0, nil
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	var events [maxEvents]unix.Kevent_t
	var n int
	var err error
	for {
		n, err = unix.Kevent(r.kq, nil, events[:], ts)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	processed := 0
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := int(ev.Ident)
		if fd == r.wakeR {
			r.drainWakeup()
			continue
		}

		r.mu.Lock()
		e, ok := r.entries[fd]
		if ok {
			delete(r.entries, fd)
		}
		r.mu.Unlock()
		if !ok {
			continue
		}

		// Drop the sibling filter of a read+write registration; the entry
		// is consumed by this delivery.
		_, _ = unix.Kevent(r.kq, r.changesFor(fd, e.ops, false), nil, nil)

		var opErr error
		if ev.Flags&unix.EV_EOF != 0 || ev.Flags&unix.EV_ERROR != 0 {
			opErr = socketError(fd)
		}
		e.handler(opErr, 0)
		processed++
	}
	return processed, nil
}

// PollOne is RunOne with a zero timeout.
func (r *kqueueReactor) PollOne() (int, error) {
	return r.RunOne(0)
}

// Wakeup makes a concurrent blocking wait return promptly.
func (r *kqueueReactor) Wakeup() {
	_, _ = unix.Write(r.wakeW, []byte{1})
}

func (r *kqueueReactor) drainWakeup() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Pending returns the number of registered descriptors.
func (r *kqueueReactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop makes subsequent waits return immediately.
func (r *kqueueReactor) Stop() {
	r.stopped.Store(true)
	r.Wakeup()
}

// Stopped reports the stop flag.
func (r *kqueueReactor) Stopped() bool {
	return r.stopped.Load()
}

// Close releases the kqueue and the wakeup pipe.
func (r *kqueueReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	r.entries = make(map[int]*fdEntry)
	r.mu.Unlock()
	r.closePipes()
	return unix.Close(r.kq)
}

func (r *kqueueReactor) closePipes() {
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
}

func socketError(fd int) error {
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soErr != 0 {
		return unix.Errno(soErr)
	}
	return ErrHangup
}
