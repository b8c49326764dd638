package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/telemetry"
)

// AuditRetentionJob deletes audit rows older than audit.retention_days.
type AuditRetentionJob struct {
	*sweeper
	days int
}

// NewAuditRetentionJob creates the retention job. The interval defaults to
// 24h.
func NewAuditRetentionJob(driver storage.Driver, cfg *config.AuditConfig) *AuditRetentionJob {
	hours := cfg.RetentionIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &AuditRetentionJob{
		sweeper: newSweeper("audit_retention", driver, storage.LockAuditRetention, time.Duration(hours)*time.Hour),
		days:    cfg.RetentionDays,
	}
}

// Start runs the retention loop. It returns immediately when retention is
// disabled.
func (j *AuditRetentionJob) Start(ctx context.Context) {
	if j.days <= 0 {
		slog.Info("audit retention job disabled (audit.retention_days=0)")
		return
	}
	j.loop(ctx, j.sweep)
}

// RunOnce runs a single retention sweep and returns the number of rows
// deleted. Used by the audit-retention command.
func (j *AuditRetentionJob) RunOnce(ctx context.Context) int64 {
	if j.days <= 0 {
		return 0
	}
	return j.runLocked(ctx, j.sweep)
}

func (j *AuditRetentionJob) sweep(ctx context.Context, tx storage.Driver) int64 {
	n := audit.DeleteByAge(ctx, tx, j.days)
	telemetry.AuditRetentionDeletedTotal.Add(float64(n))
	return n
}
