// Package safego starts background goroutines that survive panics.
package safego

import (
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

var recovered atomic.Int64

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with
// name and the stack.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				recovered.Add(1)
				slog.Error("recovered panic in background goroutine",
					"component", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// Recovered returns how many panics Go has recovered since start.
func Recovered() int64 {
	return recovered.Load()
}
