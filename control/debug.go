// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime inspection probes. Probes are named read-only hooks into live
// components; every dump publishes the observations into the registry so
// the latest state stays queryable between dumps.

package control

import (
	"sync"

	"github.com/momentics/hioload-async/ioloop"
)

// DebugProbes holds registered probe functions and the registry their
// observations are published into.
type DebugProbes struct {
	mu       sync.RWMutex
	probes   map[string]func() any
	registry *MetricsRegistry
}

// NewDebugProbes creates a probe registry publishing into reg. A nil reg
// gets a private registry.
func NewDebugProbes(reg *MetricsRegistry) *DebugProbes {
	if reg == nil {
		reg = NewMetricsRegistry()
	}
	return &DebugProbes{
		probes:   make(map[string]func() any),
		registry: reg,
	}
}

// Registry returns the registry dumps publish into.
func (dp *DebugProbes) Registry() *MetricsRegistry {
	return dp.registry
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// RegisterLoopProbes wires the standard probes of a loop: pending timers,
// registered descriptors, work count and stop state.
func (dp *DebugProbes) RegisterLoopProbes(name string, l *ioloop.Loop) {
	dp.RegisterProbe(name+".timers", func() any { return l.Timers().Len() })
	dp.RegisterProbe(name+".descriptors", func() any { return l.Reactor().Pending() })
	dp.RegisterProbe(name+".work_count", func() any { return l.WorkCount() })
	dp.RegisterProbe(name+".stopped", func() any { return l.Stopped() })
}

// DumpState runs every probe, publishes the observations into the
// registry and returns them.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for name, fn := range dp.probes {
		v := fn()
		dp.registry.Set(name, v)
		out[name] = v
	}
	return out
}
