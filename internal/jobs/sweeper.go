// Package jobs holds the periodic background work of the server. Each job runs
// once on start and then on a fixed interval until its context is cancelled
// or Stop is called. Jobs take a storage advisory lock for every run, so when
// several replicas share a database only one of them does the work.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sso-registry/sso/internal/storage"
)

// sweepFunc removes rows through tx and returns how many it removed.
type sweepFunc func(ctx context.Context, tx storage.Driver) int64

// sweeper runs a function on a ticker under an exclusive storage lock.
type sweeper struct {
	name     string
	driver   storage.Driver
	lock     storage.LockKey
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func newSweeper(name string, driver storage.Driver, lock storage.LockKey, interval time.Duration) *sweeper {
	return &sweeper{
		name:     name,
		driver:   driver,
		lock:     lock,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// loop runs sweep immediately and then on every tick. It returns when ctx is
// cancelled or Stop is called.
func (s *sweeper) loop(ctx context.Context, sweep sweepFunc) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("background job started", "job", s.name, "interval", s.interval)
	s.runLocked(ctx, sweep)

	for {
		select {
		case <-ticker.C:
			s.runLocked(ctx, sweep)
		case <-s.stopChan:
			slog.Info("background job stopped", "job", s.name)
			return
		case <-ctx.Done():
			slog.Info("background job context cancelled", "job", s.name)
			return
		}
	}
}

// runLocked runs sweep holding the job's lock and returns the number of rows
// it removed. A lock held by another replica skips the run.
func (s *sweeper) runLocked(ctx context.Context, sweep sweepFunc) int64 {
	var n int64
	err := s.driver.ExclusiveLock(ctx, s.lock, func(tx storage.Driver) error {
		n = sweep(ctx, tx)
		return nil
	})
	switch {
	case storage.IsLocked(err):
		slog.Debug("background job skipped, lock held elsewhere", "job", s.name)
		return 0
	case err != nil:
		slog.Warn("background job failed", "job", s.name, "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("background job removed rows", "job", s.name, "rows", n)
	}
	return n
}

// Stop signals the loop to exit. It is safe to call more than once.
func (s *sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
