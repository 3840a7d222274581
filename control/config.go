// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration with defaults and environment overrides.

package control

import (
	"os"
	"strconv"
	"time"

	"github.com/momentics/hioload-async/ioloop"
)

// Config carries the tunables of a loop and its pool.
type Config struct {
	// Workers is the thread-pool size. 0 means the hardware concurrency
	// hint.
	Workers int

	// BatchLimit bounds handlers drained per loop iteration.
	BatchLimit int

	// WaitBudget caps a single blocking reactor wait.
	WaitBudget time.Duration

	// PinWorkers pins worker OS threads to CPUs where supported.
	PinWorkers bool
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		Workers:    0,
		BatchLimit: 64,
		WaitBudget: 100 * time.Millisecond,
	}
}

// FromEnv applies HIOLOAD_* environment overrides on top of c.
func (c Config) FromEnv() Config {
	if v, ok := lookupInt("HIOLOAD_WORKERS"); ok {
		c.Workers = v
	}
	if v, ok := lookupInt("HIOLOAD_BATCH_LIMIT"); ok {
		c.BatchLimit = v
	}
	if v, ok := os.LookupEnv("HIOLOAD_WAIT_BUDGET"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.WaitBudget = d
		}
	}
	if v, ok := os.LookupEnv("HIOLOAD_PIN_WORKERS"); ok {
		c.PinWorkers = v == "1" || v == "true"
	}
	return c
}

// LoopOptions maps the config onto loop options.
func (c Config) LoopOptions() ioloop.Options {
	return ioloop.Options{
		BatchLimit: c.BatchLimit,
		WaitBudget: c.WaitBudget,
	}
}

// PoolOptions maps the config onto thread-pool options.
func (c Config) PoolOptions() ioloop.ThreadPoolOptions {
	return ioloop.ThreadPoolOptions{
		Workers:    c.Workers,
		PinWorkers: c.PinWorkers,
	}
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
