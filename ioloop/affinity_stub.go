//go:build !linux

// File: ioloop/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning is a no-op off Linux.

package ioloop

func pinWorker(int) {}
