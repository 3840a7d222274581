// File: api/handler.go
// Author: momentics <momentics@gmail.com>
//
// Handler shapes moved through the runtime. A handler is owned by whichever
// queue, strand or reactor entry currently holds it and is invoked at most
// once; on forced shutdown it is dropped unexecuted.

package api

// Handler is a single-shot unit of deferred work.
type Handler func()

// CompletionHandler receives the outcome of a readiness-driven I/O
// operation: the error indication and the number of bytes transferred.
type CompletionHandler func(err error, n int)

// TimerHandler receives the outcome of a timer wait. err is nil on ordinary
// expiry and timerq.ErrTimerCanceled on cancellation delivery.
type TimerHandler func(err error)
