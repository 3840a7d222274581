//go:build unix

// File: transport/socket_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP sockets over the reactor. Each async operation arms a
// one-shot registration; the readiness callback performs the syscall and
// posts the completion through the loop. EAGAIN re-arms.

package transport

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-async/api"
	"github.com/momentics/hioload-async/ioloop"
	"github.com/momentics/hioload-async/reactor"
)

// ErrSocketClosed indicates use of a closed socket.
var ErrSocketClosed = errors.New("socket is closed")

// Socket is a non-blocking stream socket bound to a loop.
type Socket struct {
	loop   *ioloop.Loop
	fd     int
	closed atomic.Bool
}

func newSocket(loop *ioloop.Loop, fd int) *Socket {
	return &Socket{loop: loop, fd: fd}
}

// Fd returns the native descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// Loop returns the owning loop.
func (s *Socket) Loop() *ioloop.Loop {
	return s.loop
}

// AsyncRead arms a read and invokes fn on the loop with the bytes read
// into buf. A readable descriptor that yields EAGAIN re-arms silently.
func (s *Socket) AsyncRead(buf []byte, fn api.CompletionHandler) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	defer s.loop.Wake()
	return s.loop.Reactor().Register(uintptr(s.fd), reactor.OpRead, func(err error, _ int) {
		if err != nil {
			s.post(fn, err, 0)
			return
		}
		n, rerr := unix.Read(s.fd, buf)
		if rerr == unix.EAGAIN {
			if rearm := s.AsyncRead(buf, fn); rearm != nil {
				s.post(fn, rearm, 0)
			}
			return
		}
		if n < 0 {
			n = 0
		}
		s.post(fn, wrapSyscall("read", rerr), n)
	})
}

// AsyncWrite arms a write and invokes fn on the loop with the bytes
// written from buf. Partial writes report the transferred count; the
// caller re-issues for the remainder.
func (s *Socket) AsyncWrite(buf []byte, fn api.CompletionHandler) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	defer s.loop.Wake()
	return s.loop.Reactor().Register(uintptr(s.fd), reactor.OpWrite, func(err error, _ int) {
		if err != nil {
			s.post(fn, err, 0)
			return
		}
		n, werr := unix.Write(s.fd, buf)
		if werr == unix.EAGAIN {
			if rearm := s.AsyncWrite(buf, fn); rearm != nil {
				s.post(fn, rearm, 0)
			}
			return
		}
		if n < 0 {
			n = 0
		}
		s.post(fn, wrapSyscall("write", werr), n)
	})
}

// Close unregisters and closes the descriptor. Pending registrations are
// removed without delivery.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = s.loop.Reactor().Unregister(uintptr(s.fd))
	return unix.Close(s.fd)
}

func (s *Socket) post(fn api.CompletionHandler, err error, n int) {
	_ = s.loop.Post(func() { fn(err, n) })
}

// Listener is a listening TCP socket bound to a loop.
type Listener struct {
	loop   *ioloop.Loop
	fd     int
	closed atomic.Bool
}

// Listen opens a non-blocking listener on addr ("host:port").
func Listen(loop *ioloop.Loop, addr string) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	sa, family, err := sockaddrOf(tcpAddr)
	if err != nil {
		return nil, err
	}

	fd, err := newStreamSocket(family)
	if err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %q: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %q: %w", addr, err)
	}
	return &Listener{loop: loop, fd: fd}, nil
}

// Fd returns the native descriptor.
func (l *Listener) Fd() int {
	return l.fd
}

// Addr returns the bound address.
func (l *Listener) Addr() (string, error) {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return "", fmt.Errorf("getsockname: %w", err)
	}
	return addrString(sa)
}

// AsyncAccept arms an accept and invokes fn on the loop with the accepted
// socket. EAGAIN re-arms.
func (l *Listener) AsyncAccept(fn func(*Socket, error)) error {
	if l.closed.Load() {
		return ErrSocketClosed
	}
	defer l.loop.Wake()
	return l.loop.Reactor().Register(uintptr(l.fd), reactor.OpAccept, func(err error, _ int) {
		if err != nil {
			l.post(fn, nil, err)
			return
		}
		nfd, _, aerr := unix.Accept(l.fd)
		if aerr == unix.EAGAIN {
			if rearm := l.AsyncAccept(fn); rearm != nil {
				l.post(fn, nil, rearm)
			}
			return
		}
		if aerr != nil {
			l.post(fn, nil, fmt.Errorf("accept: %w", aerr))
			return
		}
		_ = unix.SetNonblock(nfd, true)
		l.post(fn, newSocket(l.loop, nfd), nil)
	})
}

// Close unregisters and closes the listener.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = l.loop.Reactor().Unregister(uintptr(l.fd))
	return unix.Close(l.fd)
}

func (l *Listener) post(fn func(*Socket, error), s *Socket, err error) {
	_ = l.loop.Post(func() { fn(s, err) })
}

// AsyncConnect opens a non-blocking connection to addr and invokes fn on
// the loop once it is established or failed.
func AsyncConnect(loop *ioloop.Loop, addr string, fn func(*Socket, error)) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", addr, err)
	}
	sa, family, err := sockaddrOf(tcpAddr)
	if err != nil {
		return err
	}

	fd, err := newStreamSocket(family)
	if err != nil {
		return err
	}

	cerr := unix.Connect(fd, sa)
	if cerr == nil {
		s := newSocket(loop, fd)
		return loop.Post(func() { fn(s, nil) })
	}
	if cerr != unix.EINPROGRESS {
		unix.Close(fd)
		return fmt.Errorf("connect %q: %w", addr, cerr)
	}

	defer loop.Wake()
	return loop.Reactor().Register(uintptr(fd), reactor.OpConnect, func(err error, _ int) {
		if err == nil {
			// Writability signals completion; the per-socket error decides.
			if soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr == nil && soErr != 0 {
				err = unix.Errno(soErr)
			}
		}
		if err != nil {
			unix.Close(fd)
			_ = loop.Post(func() { fn(nil, err) })
			return
		}
		s := newSocket(loop, fd)
		_ = loop.Post(func() { fn(s, nil) })
	})
}

// newStreamSocket opens a non-blocking, close-on-exec stream socket.
// Flags are applied after creation; SOCK_NONBLOCK is not portable to every
// Unix this package builds on.
func newStreamSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

func wrapSyscall(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sockaddrOf(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	ip := addr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip16)
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, fmt.Errorf("unsupported address %v", addr)
}

func addrString(sa unix.Sockaddr) (string, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(v.Addr[:]).String(), v.Port), nil
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(v.Addr[:]).String(), v.Port), nil
	default:
		return "", fmt.Errorf("unsupported sockaddr %T", sa)
	}
}
