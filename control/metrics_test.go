// control/metrics_test.go
// Author: momentics <momentics@gmail.com>
//
// Metrics registry snapshots and the Prometheus exporter.

package control_test

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/control"
)

func TestMetricsRegistrySnapshot(t *testing.T) {
	mr := control.NewMetricsRegistry()
	require.True(t, mr.LastUpdated().IsZero())

	mr.Set("loop.queue_depth", 3)
	mr.Set("loop.timers", 1)

	snap := mr.Snapshot()
	require.Equal(t, 3, snap["loop.queue_depth"])
	require.Equal(t, 1, snap["loop.timers"])
	require.False(t, mr.LastUpdated().IsZero())

	// Snapshot is a copy.
	snap["loop.queue_depth"] = 99
	require.Equal(t, 3, mr.Snapshot()["loop.queue_depth"])
}

func TestMetricsExporterCounts(t *testing.T) {
	reg := prom.NewRegistry()
	e, err := control.NewMetricsExporter("test_runtime", reg, control.ExporterOptions{})
	require.NoError(t, err)

	e.HandlerExecuted(5 * time.Millisecond)
	e.HandlerPanic()
	e.TimerFired()
	e.TimerFired()
	e.TimerCanceled()
	e.ReactorEvents(3)
	e.ReactorEvents(0)
	e.QueueDepth(7)

	families, err := reg.Gather()
	require.NoError(t, err)

	got := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				got[fam.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				got[fam.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), got["test_runtime_handler_panic_total"])
	require.Equal(t, float64(2), got["test_runtime_timer_fired_total"])
	require.Equal(t, float64(1), got["test_runtime_timer_canceled_total"])
	require.Equal(t, float64(3), got["test_runtime_reactor_events_total"])
	require.Equal(t, float64(7), got["test_runtime_queue_depth"])
}

func TestMetricsExporterDoubleRegister(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := control.NewMetricsExporter("dup", reg, control.ExporterOptions{})
	require.NoError(t, err)
	_, err = control.NewMetricsExporter("dup", reg, control.ExporterOptions{})
	require.NoError(t, err, "re-registration must tolerate AlreadyRegisteredError")
}
