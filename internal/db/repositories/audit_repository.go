// audit_repository.go implements AuditRepository, providing database queries for
// writing and retrieving audit records, per-type metrics, the post-hoc link
// update and retention deletes.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

const auditColumns = `created_at, updated_at, audit_id, audit_user_agent, audit_remote,
	audit_forwarded, audit_status_code, audit_type, audit_subject, audit_data, key_id,
	service_id, user_id, user_key_id`

// AuditRepository handles audit database operations
type AuditRepository struct {
	q querier
}

// AuditList lists audit records, newest first.
func (r *AuditRepository) AuditList(ctx context.Context, filter *models.AuditListFilter) ([]*models.Audit, error) {
	var w where
	if filter.Ge != nil {
		w.add("created_at >= ?", filter.Ge.UTC())
	}
	if filter.Le != nil {
		w.add("created_at <= ?", filter.Le.UTC())
	}
	if len(filter.IDs) > 0 {
		w.add("audit_id IN (?)", filter.IDs)
	}
	if len(filter.Types) > 0 {
		w.add("audit_type IN (?)", filter.Types)
	}
	if len(filter.Subjects) > 0 {
		w.add("audit_subject IN (?)", filter.Subjects)
	}
	if filter.ServiceID != nil {
		w.add("service_id = ?", *filter.ServiceID)
	}
	if filter.UserID != nil {
		w.add("user_id = ?", *filter.UserID)
	}

	query := `SELECT ` + auditColumns + ` FROM sso_audit` + w.String() +
		` ORDER BY created_at DESC LIMIT ?`

	audits := []*models.Audit{}
	if err := r.q.sel(ctx, &audits, query, append(w.args, listLimit(filter.Limit))...); err != nil {
		return nil, wrap("list audit", err)
	}
	return audits, nil
}

// AuditCreate creates a new audit record
func (r *AuditRepository) AuditCreate(ctx context.Context, create *models.AuditCreate) (*models.Audit, error) {
	now := time.Now().UTC()
	audit := &models.Audit{
		CreatedAt: now,
		UpdatedAt: now,
		ID:        uuid.New(),
		UserAgent: create.UserAgent,
		Remote:    create.Remote,
		Forwarded: create.Forwarded,
		Status:    create.Status,
		Type:      create.Type,
		Subject:   create.Subject,
		Data:      create.Data,
		KeyID:     create.KeyID,
		ServiceID: create.ServiceID,
		UserID:    create.UserID,
		UserKeyID: create.UserKeyID,
	}
	if len(audit.Data) == 0 {
		audit.Data = models.JSON("{}")
	}

	query := `
		INSERT INTO sso_audit (` + auditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.exec(ctx, query,
		audit.CreatedAt,
		audit.UpdatedAt,
		audit.ID,
		audit.UserAgent,
		audit.Remote,
		audit.Forwarded,
		audit.Status,
		audit.Type,
		audit.Subject,
		audit.Data,
		audit.KeyID,
		audit.ServiceID,
		audit.UserID,
		audit.UserKeyID,
	)
	if err != nil {
		return nil, wrap("create audit", err)
	}
	return audit, nil
}

// AuditRead retrieves an audit record by ID.
func (r *AuditRepository) AuditRead(ctx context.Context, id uuid.UUID, serviceMask *uuid.UUID) (*models.Audit, error) {
	w := &where{}
	w.add("audit_id = ?", id)
	if serviceMask != nil {
		w.add("service_id = ?", *serviceMask)
	}

	audit := &models.Audit{}
	found, err := r.q.get(ctx, audit, `SELECT `+auditColumns+` FROM sso_audit`+w.String(), w.args...)
	if err != nil {
		return nil, wrap("read audit", err)
	}
	if !found {
		return nil, nil
	}
	return audit, nil
}

// AuditReadMetrics counts audit records created since from, grouped by type
// and status code.
func (r *AuditRepository) AuditReadMetrics(ctx context.Context, from time.Time, serviceMask *uuid.UUID) ([]*models.AuditMetric, error) {
	w := &where{}
	w.add("created_at >= ?", from.UTC())
	if serviceMask != nil {
		w.add("service_id = ?", *serviceMask)
	}

	query := `SELECT audit_type, audit_status_code, COUNT(*) AS count FROM sso_audit` + w.String() +
		` GROUP BY audit_type, audit_status_code ORDER BY audit_type ASC, audit_status_code ASC`

	metrics := []*models.AuditMetric{}
	if err := r.q.sel(ctx, &metrics, query, w.args...); err != nil {
		return nil, wrap("read audit metrics", err)
	}
	return metrics, nil
}

// AuditUpdate links an audit record to a status, subject or data that were
// not known when it was created. Values already set are left unchanged.
func (r *AuditRepository) AuditUpdate(ctx context.Context, update *models.AuditUpdate) (*models.Audit, error) {
	audit, err := r.AuditRead(ctx, update.ID, update.ServiceID)
	if err != nil {
		return nil, err
	}
	if audit == nil {
		return nil, wrap("update audit", storage.ErrNotFound)
	}

	if update.Status != nil && audit.Status == 0 {
		audit.Status = *update.Status
	}
	if update.Subject != nil && audit.Subject == nil {
		audit.Subject = update.Subject
	}
	if !update.Data.IsEmpty() && audit.Data.IsEmpty() {
		audit.Data = update.Data
	}
	audit.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sso_audit SET
			updated_at = ?, audit_status_code = ?, audit_subject = ?, audit_data = ?
		WHERE audit_id = ?
	`
	_, err = r.q.exec(ctx, query, audit.UpdatedAt, audit.Status, audit.Subject, audit.Data, audit.ID)
	if err != nil {
		return nil, wrap("update audit", err)
	}
	return audit, nil
}

// AuditDeleteByCreatedAt deletes audit records created before the given time.
func (r *AuditRepository) AuditDeleteByCreatedAt(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.q.exec(ctx, `DELETE FROM sso_audit WHERE created_at < ?`, before.UTC())
	return n, wrap("delete audit", err)
}
