// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness reactor interface for cross-platform IO
// multiplexing. Registrations are one-shot: the entry is removed before its
// handler is invoked, and a second delivery requires a new registration.

package reactor

import (
	"errors"
	"time"

	"github.com/momentics/hioload-async/api"
)

// Op is a bitset over the requestable and reportable operations of a
// descriptor registration.
type Op uint8

const (
	OpNone    Op = 0
	OpRead    Op = 1 << 0
	OpWrite   Op = 1 << 1
	OpAccept  Op = 1 << 2
	OpConnect Op = 1 << 3
	OpError   Op = 1 << 4
	OpHangup  Op = 1 << 5
)

// Has reports whether mask contains all bits of op.
func (mask Op) Has(op Op) bool {
	return mask&op == op
}

// readiness maps the typed operations onto the platform's read/write
// interest sets: accept waits for readability, connect for writability.
func (mask Op) readiness() (read, write bool) {
	read = mask.Has(OpRead) || mask.Has(OpAccept)
	write = mask.Has(OpWrite) || mask.Has(OpConnect)
	return
}

var (
	// ErrReactorClosed indicates use after Close.
	ErrReactorClosed = errors.New("reactor is closed")

	// ErrHangup is delivered when the peer hung up and the socket carries
	// no specific error code.
	ErrHangup = errors.New("descriptor hangup")
)

// Reactor is the uniform readiness-notification surface over epoll,
// kqueue, poll and IOCP backends.
type Reactor interface {
	// Register arms a one-shot registration of fd for ops. Registering an
	// already-registered descriptor replaces its mask and handler.
	Register(fd uintptr, ops Op, handler api.CompletionHandler) error

	// Unregister removes a registration. Silent on absence.
	Unregister(fd uintptr) error

	// Modify replaces the operation mask, keeping the handler.
	Modify(fd uintptr, ops Op) error

	// RunOne waits up to timeout for readiness or error and delivers at
	// most one batch of ready events, invoking each affected handler with
	// an error indication (error/hangup events) or success with a zero
	// byte count. Returns the number of handlers invoked. A negative
	// timeout blocks until an event or a Wakeup.
	RunOne(timeout time.Duration) (int, error)

	// PollOne is RunOne with a zero timeout.
	PollOne() (int, error)

	// Wakeup unblocks a concurrent RunOne promptly. Used when posting work
	// from another goroutine must interrupt a blocking wait.
	Wakeup()

	// Pending returns the number of registered descriptors, excluding the
	// internal wakeup channel.
	Pending() int

	// Stop makes subsequent waits return immediately.
	Stop()

	// Stopped reports whether Stop has been called.
	Stopped() bool

	// Close releases the backend. Remaining registrations are dropped
	// without delivery.
	Close() error
}
