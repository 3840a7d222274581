// File: internal/goid/goid_test.go
// Author: momentics <momentics@gmail.com>

package goid_test

import (
	"sync"
	"testing"

	"github.com/momentics/hioload-async/internal/goid"
)

func TestGetIsStablePerGoroutine(t *testing.T) {
	if goid.Get() != goid.Get() {
		t.Fatal("goroutine id changed between calls")
	}
	if goid.Get() == goid.None {
		t.Fatal("goroutine id must never be None")
	}
}

func TestGetDiffersAcrossGoroutines(t *testing.T) {
	self := goid.Get()

	var other int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = goid.Get()
	}()
	wg.Wait()

	if other == self {
		t.Fatalf("distinct goroutines share id %d", self)
	}
}
