// File: ioloop/threadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed pool of worker goroutines driving one loop. The pool holds its own
// work guard so empty-queue transients do not make workers exit early;
// graceful shutdown resets the guard, signals stop and waits for workers.

package ioloop

import (
	"runtime"
	"sync"
)

// ThreadPoolOptions configures a ThreadPool.
type ThreadPoolOptions struct {
	// Workers is the worker count. 0 means runtime.NumCPU().
	Workers int

	// PinWorkers pins each worker OS thread to a CPU on platforms that
	// support it.
	PinWorkers bool
}

// ThreadPool drives a Loop from a fixed set of worker goroutines.
type ThreadPool struct {
	loop     *Loop
	guard    *WorkGuard
	wg       sync.WaitGroup
	workers  int
	stopOnce sync.Once
}

// NewThreadPool starts workers driving l.
func NewThreadPool(l *Loop, opts ThreadPoolOptions) *ThreadPool {
	n := opts.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}

	p := &ThreadPool{
		loop:    l,
		guard:   NewWorkGuard(l),
		workers: n,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker(i, opts.PinWorkers)
	}
	return p
}

// Context returns the driven loop.
func (p *ThreadPool) Context() *Loop {
	return p.loop
}

// Executor returns the loop's submission handle.
func (p *ThreadPool) Executor() Executor {
	return p.loop.Executor()
}

// Workers returns the worker count.
func (p *ThreadPool) Workers() int {
	return p.workers
}

// Post defers fn onto the driven loop.
func (p *ThreadPool) Post(fn func()) error {
	return p.loop.Post(fn)
}

// Stop releases the internal guard, signals stop and waits for every
// worker to return. Idempotent.
func (p *ThreadPool) Stop() {
	p.stopOnce.Do(func() {
		p.guard.Reset()
		p.loop.Stop()
	})
	p.wg.Wait()
}

// Wait blocks until all workers have returned.
func (p *ThreadPool) Wait() {
	p.wg.Wait()
}

func (p *ThreadPool) worker(id int, pin bool) {
	defer p.wg.Done()
	if pin {
		pinWorker(id)
	}

	for {
		panicked := p.safeRun()
		if p.loop.Stopped() {
			return
		}
		if !panicked {
			// Natural quiesce; with the pool guard held this means the
			// guard was reset externally.
			return
		}
		logger.Warn().Int("worker", id).Msg("worker re-entering loop after panic")
	}
}

// safeRun enters the loop's Run and absorbs anything that escapes it, so a
// transient failure never kills a worker.
func (p *ThreadPool) safeRun() (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			logger.Warn().Any("panic", r).Msg("loop run panic absorbed")
		}
	}()
	p.loop.Run()
	return false
}
