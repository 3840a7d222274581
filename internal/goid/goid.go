// File: internal/goid/goid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Goroutine identity for "running in this loop/strand" detection. Parses
// the goroutine header emitted by runtime.Stack; the format ("goroutine N
// [state]:") is stable and relied upon by the runtime's own tests.

package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// None marks "no goroutine". Get returns it only when the runtime.Stack
// header cannot be parsed.
const None int64 = 0

// Get returns the id of the calling goroutine.
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := bytes.TrimPrefix(buf[:n], prefix)
	i := bytes.IndexByte(s, ' ')
	if i < 0 {
		return None
	}
	id, err := strconv.ParseInt(string(s[:i]), 10, 64)
	if err != nil {
		return None
	}
	return id
}
