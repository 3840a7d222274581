// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package execution provides the serialization primitives of the runtime:
// the mutex-guarded FIFO work queue that backs the event loop, the strand
// (a serializing executor over a shared worker pool) and the detached-spawn
// adaptation for continuation-style computations.
package execution
