//go:build !unix && !windows

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for unsupported platforms.

package reactor

import "errors"

// New returns an error for unsupported platforms.
func New() (Reactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}
