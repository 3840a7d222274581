// File: execution/spawn_test.go
// Author: momentics <momentics@gmail.com>
//
// Detached spawn and awaitable scheduling contract.

package execution_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/api"
	"github.com/momentics/hioload-async/execution"
)

// serialExecutor runs handlers one by one on a single background
// goroutine, close enough to a single-worker loop for these tests.
type serialExecutor struct {
	mu      sync.Mutex
	queue   []api.Handler
	running bool
	stopped bool
}

func (e *serialExecutor) Execute(fn api.Handler) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return errors.New("executor stopped")
	}
	e.queue = append(e.queue, fn)
	if !e.running {
		e.running = true
		go e.drain()
	}
	e.mu.Unlock()
	return nil
}

func (e *serialExecutor) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		fn()
	}
}

func (e *serialExecutor) stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

func TestSpawnDetachedDrivesTask(t *testing.T) {
	exec := &serialExecutor{}

	got := make(chan int, 1)
	task := execution.NewTask(func() (int, error) {
		return 42, nil
	})
	tapped := execution.Then(task, func(v int) execution.Task[int] {
		return execution.NewTask(func() (int, error) {
			got <- v
			return v, nil
		})
	})

	require.NoError(t, execution.SpawnDetached(exec, tapped))

	select {
	case v := <-got:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("task chain did not complete")
	}
}

func TestSpawnDetachedAbsorbsFailure(t *testing.T) {
	exec := &serialExecutor{}

	require.NoError(t, execution.SpawnDetached(exec, execution.NewTask(func() (int, error) {
		panic("detached failure")
	})))

	// A later task still runs; the executor survived.
	ran := make(chan struct{})
	require.NoError(t, exec.Execute(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("executor wedged after detached failure")
	}
}

func TestThenShortCircuitsOnError(t *testing.T) {
	exec := &serialExecutor{}

	done := make(chan struct{})
	chained := execution.Then(
		execution.NewTask(func() (int, error) { return 0, errors.New("first failed") }),
		func(int) execution.Task[int] {
			t.Error("continuation ran despite error")
			return execution.NewTask(func() (int, error) { return 0, nil })
		},
	)
	wrapped := execution.NewTaskFunc(func(e api.Executor, complete func(struct{}, error)) {
		chained.Start(e, func(_ int, err error) {
			require.Error(t, err)
			close(done)
			complete(struct{}{}, nil)
		})
	})

	require.NoError(t, execution.SpawnDetached(exec, wrapped))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("error did not propagate through the chain")
	}
}

func TestScheduleResumesOnExecutor(t *testing.T) {
	exec := &serialExecutor{}
	op := execution.Schedule(exec)

	require.False(t, op.Ready())

	resumed := make(chan struct{})
	require.NoError(t, op.OnSuspend(func() { close(resumed) }))
	op.Resume()

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("resumption never posted")
	}
}

func TestScheduleOnStoppedExecutorReportsError(t *testing.T) {
	exec := &serialExecutor{}
	exec.stop()

	require.Error(t, execution.Schedule(exec).OnSuspend(func() {
		t.Error("resumption ran on stopped executor")
	}))
}
