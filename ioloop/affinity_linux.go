//go:build linux

// File: ioloop/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Worker CPU pinning via sched_setaffinity. The worker's OS thread is
// locked first so the mask stays with the goroutine.

package ioloop

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func pinWorker(id int) {
	runtime.LockOSThread()

	cpu := id % runtime.NumCPU()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		logger.Warn().Err(err).Int("cpu", cpu).Msg("worker pin failed")
	}
}
