//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) backend. Level-triggered by default with an optional
// edge-triggered mode; EPOLLONESHOT enforces single delivery and an
// eventfd wired into the epoll set provides cross-goroutine wakeup.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-async/api"
)

// TriggerMode selects the epoll notification style.
type TriggerMode uint8

const (
	LevelTriggered TriggerMode = iota
	EdgeTriggered
)

const maxEvents = 128

type fdEntry struct {
	ops     Op
	handler api.CompletionHandler
}

type epollReactor struct {
	epfd    int
	wakeFD  int
	mode    TriggerMode
	mu      sync.Mutex
	entries map[int32]*fdEntry
	stopped atomic.Bool
	closed  atomic.Bool
}

// New creates the platform reactor in level-triggered mode.
func New() (Reactor, error) {
	return NewWithMode(LevelTriggered)
}

// NewWithMode creates an epoll reactor with the given trigger mode.
func NewWithMode(mode TriggerMode) (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		unix.Close(wakeFD)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}

	return &epollReactor{
		epfd:    epfd,
		wakeFD:  wakeFD,
		mode:    mode,
		entries: make(map[int32]*fdEntry),
	}, nil
}

func (r *epollReactor) epollEvents(ops Op) uint32 {
	var events uint32 = unix.EPOLLONESHOT
	read, write := ops.readiness()
	if read {
		events |= unix.EPOLLIN
	}
	if write {
		events |= unix.EPOLLOUT
	}
	if r.mode == EdgeTriggered {
		events |= unix.EPOLLET
	}
	// EPOLLERR and EPOLLHUP are always reported.
	return events
}

// Register arms a one-shot registration. An already-registered descriptor
// is updated in place, keeping the update-then-wait semantics.
func (r *epollReactor) Register(fd uintptr, ops Op, handler api.CompletionHandler) error {
	if r.closed.Load() {
		return ErrReactorClosed
	}
	if handler == nil {
		panic(api.NewError(api.ErrCodeInvalidArgument, "reactor: nil completion handler"))
	}

	ev := unix.EpollEvent{Events: r.epollEvents(ops), Fd: int32(fd)}

	r.mu.Lock()
	_, present := r.entries[int32(fd)]
	r.entries[int32(fd)] = &fdEntry{ops: ops, handler: handler}
	r.mu.Unlock()

	op := unix.EPOLL_CTL_ADD
	if present {
		op = unix.EPOLL_CTL_MOD
	}
	err := unix.EpollCtl(r.epfd, op, int(fd), &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	} else if err == unix.ENOENT {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev)
	}
	if err != nil {
		r.mu.Lock()
		delete(r.entries, int32(fd))
		r.mu.Unlock()
		return fmt.Errorf("epoll ctl: %w", err)
	}
	return nil
}

// Unregister removes a registration. Silent on absence.
func (r *epollReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	_, present := r.entries[int32(fd)]
	delete(r.entries, int32(fd))
	r.mu.Unlock()

	if present {
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	}
	return nil
}

// Modify replaces the operation mask, keeping the handler.
func (r *epollReactor) Modify(fd uintptr, ops Op) error {
	r.mu.Lock()
	e, present := r.entries[int32(fd)]
	if present {
		e.ops = ops
	}
	r.mu.Unlock()

	if !present {
		return api.ErrNotFound
	}
	ev := unix.EpollEvent{Events: r.epollEvents(ops), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// RunOne waits up to timeout and delivers at most one batch of events.
func (r *epollReactor) RunOne(timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, ErrReactorClosed
	}
	if r.stopped.Load() {
		return 0, nil
	}

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	var events [maxEvents]unix.EpollEvent
	var n int
	var err error
	for {
		n, err = unix.EpollWait(r.epfd, events[:], timeoutMs)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	processed := 0
	for i := 0; i < n; i++ {
		ev := events[i]
		if int(ev.Fd) == r.wakeFD {
			r.drainWakeup()
			continue
		}

		r.mu.Lock()
		e, ok := r.entries[ev.Fd]
		if ok {
			delete(r.entries, ev.Fd)
		}
		r.mu.Unlock()
		if !ok {
			continue
		}
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(ev.Fd), nil)

		e.handler(errorFromEvents(int(ev.Fd), ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0), 0)
		processed++
	}
	return processed, nil
}

// PollOne is RunOne with a zero timeout.
func (r *epollReactor) PollOne() (int, error) {
	return r.RunOne(0)
}

// Wakeup makes a concurrent blocking wait return promptly.
func (r *epollReactor) Wakeup() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(r.wakeFD, buf[:])
}

func (r *epollReactor) drainWakeup() {
	var buf [8]byte
	_, _ = unix.Read(r.wakeFD, buf[:])
}

// Pending returns the number of registered descriptors.
func (r *epollReactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop makes subsequent waits return immediately.
func (r *epollReactor) Stop() {
	r.stopped.Store(true)
	r.Wakeup()
}

// Stopped reports the stop flag.
func (r *epollReactor) Stopped() bool {
	return r.stopped.Load()
}

// Close releases the epoll instance and the wakeup channel. Remaining
// registrations are dropped without delivery.
func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	r.entries = make(map[int32]*fdEntry)
	r.mu.Unlock()
	unix.Close(r.wakeFD)
	return unix.Close(r.epfd)
}

// errorFromEvents maps an error/hangup event to the per-socket error code,
// falling back to ErrHangup when the socket carries none.
func errorFromEvents(fd int, errEvent bool) error {
	if !errEvent {
		return nil
	}
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soErr != 0 {
		return unix.Errno(soErr)
	}
	return ErrHangup
}
