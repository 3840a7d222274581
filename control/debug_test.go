// control/debug_test.go
// Author: momentics <momentics@gmail.com>
//
// Debug probes over a live loop, publishing into the metrics registry.

package control_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/control"
	"github.com/momentics/hioload-async/ioloop"
)

func TestLoopProbesObserveLifecycle(t *testing.T) {
	l, err := ioloop.New()
	require.NoError(t, err)

	reg := control.NewMetricsRegistry()
	dp := control.NewDebugProbes(reg)
	dp.RegisterLoopProbes("loop", l)
	require.Same(t, reg, dp.Registry())

	guard := ioloop.NewWorkGuard(l)
	l.Timers().AddAfter(time.Hour, func(error) {})

	state := dp.DumpState()
	require.Equal(t, 1, state["loop.timers"])
	require.Equal(t, int64(1), state["loop.work_count"])
	require.Equal(t, false, state["loop.stopped"])

	// The dump published into the registry.
	snap := reg.Snapshot()
	require.Equal(t, 1, snap["loop.timers"])
	require.False(t, reg.LastUpdated().IsZero())

	guard.Reset()
	l.Timers().Clear()
	l.Stop()

	state = dp.DumpState()
	require.Equal(t, 0, state["loop.timers"])
	require.Equal(t, int64(0), state["loop.work_count"])
	require.Equal(t, true, state["loop.stopped"])
	require.Equal(t, true, reg.Snapshot()["loop.stopped"])
}

func TestDebugProbesDefaultRegistry(t *testing.T) {
	dp := control.NewDebugProbes(nil)
	dp.RegisterProbe("answer", func() any { return 42 })

	require.Equal(t, map[string]any{"answer": 42}, dp.DumpState())
	require.Equal(t, 42, dp.Registry().Snapshot()["answer"])
}
