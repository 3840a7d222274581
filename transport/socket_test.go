//go:build unix

// File: transport/socket_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket surface over the reactor: accept/connect/read/write roundtrip.

package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/ioloop"
	"github.com/momentics/hioload-async/transport"
)

func TestEchoRoundtrip(t *testing.T) {
	l, err := ioloop.New()
	require.NoError(t, err)
	pool := ioloop.NewThreadPool(l, ioloop.ThreadPoolOptions{Workers: 2})
	defer pool.Stop()

	ln, err := transport.Listen(l, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr, err := ln.Addr()
	require.NoError(t, err)

	// Server: accept one connection and echo one read back.
	serverDone := make(chan error, 1)
	require.NoError(t, ln.AsyncAccept(func(conn *transport.Socket, err error) {
		if err != nil {
			serverDone <- err
			return
		}
		buf := make([]byte, 64)
		_ = conn.AsyncRead(buf, func(err error, n int) {
			if err != nil {
				serverDone <- err
				return
			}
			_ = conn.AsyncWrite(buf[:n], func(err error, _ int) {
				conn.Close()
				serverDone <- err
			})
		})
	}))

	// Client: connect, send, read the echo.
	echoed := make(chan string, 1)
	require.NoError(t, transport.AsyncConnect(l, addr, func(conn *transport.Socket, err error) {
		if err != nil {
			echoed <- "connect error: " + err.Error()
			return
		}
		payload := []byte("ping")
		_ = conn.AsyncWrite(payload, func(err error, n int) {
			if err != nil {
				echoed <- "write error: " + err.Error()
				return
			}
			buf := make([]byte, 64)
			_ = conn.AsyncRead(buf, func(err error, n int) {
				defer conn.Close()
				if err != nil {
					echoed <- "read error: " + err.Error()
					return
				}
				echoed <- string(buf[:n])
			})
		})
	}))

	select {
	case got := <-echoed:
		require.Equal(t, "ping", got)
	case <-time.After(5 * time.Second):
		t.Fatal("echo roundtrip timed out")
	}
	select {
	case err := <-serverDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server side did not finish")
	}
}

func TestAsyncConnectFailureReported(t *testing.T) {
	l, err := ioloop.New()
	require.NoError(t, err)
	pool := ioloop.NewThreadPool(l, ioloop.ThreadPoolOptions{Workers: 1})
	defer pool.Stop()

	// A port that nothing listens on; the listener is closed immediately
	// to free the address first.
	ln, err := transport.Listen(l, "127.0.0.1:0")
	require.NoError(t, err)
	addr, err := ln.Addr()
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	result := make(chan error, 1)
	require.NoError(t, transport.AsyncConnect(l, addr, func(conn *transport.Socket, err error) {
		if conn != nil {
			conn.Close()
		}
		result <- err
	}))

	select {
	case err := <-result:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect failure never reported")
	}
}

func TestClosedSocketRejectsAsyncOps(t *testing.T) {
	l, err := ioloop.New()
	require.NoError(t, err)

	ln, err := transport.Listen(l, "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	require.ErrorIs(t, ln.AsyncAccept(func(*transport.Socket, error) {}), transport.ErrSocketClosed)
}
