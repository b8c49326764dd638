package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/storage"
)

// CsrfSweepJob removes CSRF rows whose OAuth2 login was never completed.
// Reads already ignore expired rows; the sweep only reclaims space.
type CsrfSweepJob struct {
	*sweeper
	now func() time.Time
}

// NewCsrfSweepJob creates the sweep job. The interval defaults to 15m.
func NewCsrfSweepJob(driver storage.Driver, cfg *config.AuditConfig) *CsrfSweepJob {
	minutes := cfg.CsrfSweepIntervalMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return &CsrfSweepJob{
		sweeper: newSweeper("csrf_sweep", driver, storage.LockCsrfSweep, time.Duration(minutes)*time.Minute),
		now:     time.Now,
	}
}

// Start runs the sweep loop.
func (j *CsrfSweepJob) Start(ctx context.Context) {
	j.loop(ctx, j.sweep)
}

// RunOnce runs a single sweep and returns the number of rows deleted.
func (j *CsrfSweepJob) RunOnce(ctx context.Context) int64 {
	return j.runLocked(ctx, j.sweep)
}

func (j *CsrfSweepJob) sweep(ctx context.Context, tx storage.Driver) int64 {
	n, err := tx.CsrfDeleteExpired(ctx, j.now().UTC())
	if err != nil {
		slog.Warn("csrf sweep delete failed", "error", err)
		return 0
	}
	return n
}
