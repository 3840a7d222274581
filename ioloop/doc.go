// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package ioloop implements the event loop at the center of the runtime:
// it interleaves queued handler execution, timer expiry and reactor waits,
// and exits once no work remains. WorkGuard keeps a loop alive across gaps
// in queued work; ThreadPool drives one loop from a fixed set of workers.
package ioloop
