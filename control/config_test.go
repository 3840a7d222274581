// control/config_test.go
// Author: momentics <momentics@gmail.com>
//
// Config defaults and environment overrides.

package control_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/control"
)

func TestDefaultConfig(t *testing.T) {
	cfg := control.DefaultConfig()
	require.Equal(t, 64, cfg.BatchLimit)
	require.Equal(t, 100*time.Millisecond, cfg.WaitBudget)
	require.Zero(t, cfg.Workers)
	require.False(t, cfg.PinWorkers)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("HIOLOAD_WORKERS", "8")
	t.Setenv("HIOLOAD_BATCH_LIMIT", "16")
	t.Setenv("HIOLOAD_WAIT_BUDGET", "250ms")
	t.Setenv("HIOLOAD_PIN_WORKERS", "true")

	cfg := control.DefaultConfig().FromEnv()
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, 16, cfg.BatchLimit)
	require.Equal(t, 250*time.Millisecond, cfg.WaitBudget)
	require.True(t, cfg.PinWorkers)

	opts := cfg.LoopOptions()
	require.Equal(t, 16, opts.BatchLimit)
	require.Equal(t, 250*time.Millisecond, opts.WaitBudget)

	poolOpts := cfg.PoolOptions()
	require.Equal(t, 8, poolOpts.Workers)
	require.True(t, poolOpts.PinWorkers)
}

func TestConfigFromEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("HIOLOAD_WORKERS", "not-a-number")
	t.Setenv("HIOLOAD_WAIT_BUDGET", "soon")

	cfg := control.DefaultConfig().FromEnv()
	require.Zero(t, cfg.Workers)
	require.Equal(t, 100*time.Millisecond, cfg.WaitBudget)
}
