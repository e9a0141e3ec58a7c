// Package testutil holds channel helpers shared by package tests.
package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Receive returns the next value from ch, failing the test if nothing
// arrives within timeout or ch is closed.
func Receive[T any](t TB, ch <-chan T, timeout time.Duration, what string, args ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while %s", fmt.Sprintf(what, args...))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v %s", timeout, fmt.Sprintf(what, args...))
	}
	panic("unreachable")
}

// NoReceive fails the test if ch yields a value within wait.
func NoReceive[T any](t TB, ch <-chan T, wait time.Duration, what string, args ...any) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %+v %s", v, fmt.Sprintf(what, args...))
		}
	case <-time.After(wait):
	}
}

// Closed waits for ch to be closed, draining any values still buffered.
func Closed[T any](t TB, ch <-chan T, timeout time.Duration, what string, args ...any) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("timed out after %v waiting for close %s", timeout, fmt.Sprintf(what, args...))
		}
	}
}
