// File: timerq/timer_test.go
// Author: momentics <momentics@gmail.com>
//
// Re-armable timer surface over the queue.

package timerq_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-async/timerq"
)

func TestTimerRearmCancelsPreviousWait(t *testing.T) {
	q := timerq.NewTimerQueue()
	tm := timerq.NewTimer(q)

	tm.ExpiresAfter(time.Hour)
	tm.AsyncWait(func(error) { t.Error("replaced wait delivered") })

	n := tm.ExpiresAfter(5 * time.Millisecond)
	require.Equal(t, 1, n)
	fired := false
	tm.AsyncWait(func(err error) {
		require.NoError(t, err)
		fired = true
	})
	require.Equal(t, 1, q.Len())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, q.ProcessExpired(time.Now().Add(time.Second)))
	require.True(t, fired)
}

func TestTimerCancelWithoutWait(t *testing.T) {
	q := timerq.NewTimerQueue()
	tm := timerq.NewTimer(q)
	require.Equal(t, 0, tm.Cancel())
}
