//go:build linux

// File: reactor/reactor_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// epoll backend contract: one-shot delivery, re-arm, wakeup, stop.

package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-async/reactor"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReactorDeliversReadReadiness(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	rfd, wfd := newPipe(t)

	delivered := 0
	require.NoError(t, demux.Register(uintptr(rfd), reactor.OpRead, func(err error, n int) {
		require.NoError(t, err)
		require.Equal(t, 0, n)
		delivered++
	}))
	require.Equal(t, 1, demux.Pending())

	_, err = unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	n, err := demux.RunOne(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, delivered)
	require.Equal(t, 0, demux.Pending())
}

// One-shot: a second readiness needs explicit re-registration.
func TestReactorOneShotRequiresRearm(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	rfd, wfd := newPipe(t)

	delivered := 0
	register := func() {
		require.NoError(t, demux.Register(uintptr(rfd), reactor.OpRead, func(err error, _ int) {
			require.NoError(t, err)
			delivered++
		}))
	}
	register()

	_, err = unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	n, err := demux.RunOne(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Data still unread, but the registration was consumed.
	n, err = demux.RunOne(50 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 1, delivered)

	register()
	n, err = demux.RunOne(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 2, delivered)
}

func TestReactorUnregisterSuppressesDelivery(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	rfd, wfd := newPipe(t)

	require.NoError(t, demux.Register(uintptr(rfd), reactor.OpRead, func(error, int) {
		t.Error("unregistered handler invoked")
	}))
	require.NoError(t, demux.Unregister(uintptr(rfd)))
	require.Equal(t, 0, demux.Pending())

	_, err = unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	n, err := demux.RunOne(50 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReactorRegisterReplacesExisting(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	rfd, wfd := newPipe(t)

	require.NoError(t, demux.Register(uintptr(rfd), reactor.OpRead, func(error, int) {
		t.Error("replaced handler invoked")
	}))
	replaced := false
	require.NoError(t, demux.Register(uintptr(rfd), reactor.OpRead, func(err error, _ int) {
		require.NoError(t, err)
		replaced = true
	}))
	require.Equal(t, 1, demux.Pending())

	_, err = unix.Write(wfd, []byte("x"))
	require.NoError(t, err)

	n, err := demux.RunOne(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, replaced)
}

func TestReactorWakeupInterruptsBlockingWait(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	done := make(chan struct{})
	go func() {
		// Long wait, no registrations; only Wakeup can release it early.
		_, _ = demux.RunOne(5 * time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	demux.Wakeup()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wakeup did not interrupt a blocking wait")
	}
}

func TestReactorStopMakesWaitsReturn(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	demux.Stop()
	require.True(t, demux.Stopped())

	start := time.Now()
	n, err := demux.RunOne(time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestReactorHangupDeliversError(t *testing.T) {
	demux, err := reactor.New()
	require.NoError(t, err)
	defer demux.Close()

	rfd, wfd := newPipe(t)

	var got error
	require.NoError(t, demux.Register(uintptr(rfd), reactor.OpRead, func(err error, _ int) {
		got = err
	}))

	// Closing the write end hangs up the read end.
	require.NoError(t, unix.Close(wfd))

	n, err := demux.RunOne(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Error(t, got)
}
