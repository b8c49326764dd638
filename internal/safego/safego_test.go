package safego

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test", func() { close(done) })
	waitDone(t, done)
}

func TestGo_RecoversPanic(t *testing.T) {
	before := Recovered()
	done := make(chan struct{})

	Go("test", func() {
		defer close(done)
		panic("intentional panic in test")
	})
	waitDone(t, done)

	// The deferred close runs before the recover in Go, so poll briefly.
	require.Eventually(t, func() bool { return Recovered() > before }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, before+1, Recovered())
}
