// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics for system-level monitoring. MetricsRegistry is the
// snapshot store behind the debug probes; MetricsExporter adapts the
// api.Collector hook onto Prometheus collectors.

package control

import (
	"errors"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-async/api"
)

// MetricsRegistry holds the latest probe observations keyed by name.
// DebugProbes publishes into it on every dump; readers take snapshots.
type MetricsRegistry struct {
	mu      sync.RWMutex
	values  map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{values: make(map[string]any)}
}

// Set records one observation under key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.values[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Snapshot returns a copy of the latest observations.
func (mr *MetricsRegistry) Snapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.values))
	for k, v := range mr.values {
		out[k] = v
	}
	return out
}

// LastUpdated returns the time of the most recent Set, zero if none.
func (mr *MetricsRegistry) LastUpdated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts api.Collector to Prometheus collectors.
type MetricsExporter struct {
	handlerDuration prom.Histogram
	handlerPanics   prom.Counter
	timersFired     prom.Counter
	timersCanceled  prom.Counter
	reactorEvents   prom.Counter
	queueDepth      prom.Gauge
}

var _ api.Collector = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for the
// api.Collector hook.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "hioload_async"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	e := &MetricsExporter{
		handlerDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution duration in seconds.",
			Buckets:   buckets,
		}),
		handlerPanics: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panic_total",
			Help:      "Total number of handler panics absorbed at worker boundaries.",
		}),
		timersFired: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "timer_fired_total",
			Help:      "Total number of timers delivered with ordinary expiry.",
		}),
		timersCanceled: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "timer_canceled_total",
			Help:      "Total number of timers removed by cancellation.",
		}),
		reactorEvents: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reactor_events_total",
			Help:      "Total number of reactor completions delivered.",
		}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Work queue length observed by the loop.",
		}),
	}

	collectors := []prom.Collector{
		e.handlerDuration, e.handlerPanics, e.timersFired,
		e.timersCanceled, e.reactorEvents, e.queueDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prom.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	return e, nil
}

// HandlerExecuted implements api.Collector.
func (e *MetricsExporter) HandlerExecuted(d time.Duration) {
	e.handlerDuration.Observe(d.Seconds())
}

// HandlerPanic implements api.Collector.
func (e *MetricsExporter) HandlerPanic() {
	e.handlerPanics.Inc()
}

// TimerFired implements api.Collector.
func (e *MetricsExporter) TimerFired() {
	e.timersFired.Inc()
}

// TimerCanceled implements api.Collector.
func (e *MetricsExporter) TimerCanceled() {
	e.timersCanceled.Inc()
}

// ReactorEvents implements api.Collector.
func (e *MetricsExporter) ReactorEvents(n int) {
	if n > 0 {
		e.reactorEvents.Add(float64(n))
	}
}

// QueueDepth implements api.Collector.
func (e *MetricsExporter) QueueDepth(n int) {
	e.queueDepth.Set(float64(n))
}
