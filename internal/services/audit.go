package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

// AuditCreateRequest writes a custom audit row on behalf of a service, for
// events that happen outside the identity provider.
type AuditCreateRequest struct {
	Type      string      `json:"type" validate:"required,max=1000"`
	Subject   *string     `json:"subject,omitempty" validate:"omitempty,max=1000"`
	Data      models.JSON `json:"data,omitempty"`
	UserID    *uuid.UUID  `json:"user_id,omitempty"`
	UserKeyID *uuid.UUID  `json:"user_key_id,omitempty"`
}

// AuditList lists audit rows visible to the caller. Reads of the audit log
// are not themselves audited.
func (s *Identity) AuditList(ctx context.Context, caller Caller, filter *models.AuditListFilter) ([]*models.Audit, error) {
	service, err := s.authenticate(ctx, audit.NewBuilder(caller.Meta), caller)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &models.AuditListFilter{}
	}
	if service != nil {
		filter.ServiceID = &service.ID
	}
	audits, err := s.driver.AuditList(ctx, filter)
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	return audits, nil
}

// AuditRead reads an audit row visible to the caller.
func (s *Identity) AuditRead(ctx context.Context, caller Caller, id uuid.UUID) (*models.Audit, error) {
	service, err := s.authenticate(ctx, audit.NewBuilder(caller.Meta), caller)
	if err != nil {
		return nil, err
	}
	row, err := s.driver.AuditRead(ctx, id, serviceMask(service))
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	if row == nil {
		return nil, auth.ErrAuditNotFound
	}
	return row, nil
}

// AuditReadMetrics counts audit rows per type and status since from.
func (s *Identity) AuditReadMetrics(ctx context.Context, caller Caller, from time.Time) ([]*models.AuditMetric, error) {
	service, err := s.authenticate(ctx, audit.NewBuilder(caller.Meta), caller)
	if err != nil {
		return nil, err
	}
	metrics, err := s.driver.AuditReadMetrics(ctx, from, serviceMask(service))
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	return metrics, nil
}

// AuditCreate writes the custom row described by req. Unlike the rows written
// for identity operations, a failed write is returned to the caller.
func (s *Identity) AuditCreate(ctx context.Context, caller Caller, req *AuditCreateRequest) (*models.Audit, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuditCreate, func(b *audit.Builder) (*models.Audit, error) {
		service, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return nil, err
		}

		// The custom row gets its own builder so the entities it names are
		// not mixed into the row recording this call.
		custom := audit.NewBuilder(caller.Meta).Key(keyOf(b)).Service(service)
		if req.UserID != nil {
			user, err := auth.UserReadIDUnchecked(ctx, s.driver, b, *req.UserID)
			if err != nil {
				return nil, auth.BadRequest(err)
			}
			custom.User(user)
		}
		if req.UserKeyID != nil {
			key, err := s.driver.KeyRead(ctx, models.KeyReadID(*req.UserKeyID), serviceMask(service))
			if err != nil {
				return nil, auth.BadRequest(err)
			}
			if key == nil || key.UserID == nil {
				return nil, auth.ErrKeyNotFound
			}
			custom.UserKey(key)
		}
		if req.Subject != nil {
			custom.SetSubject(*req.Subject)
		}

		var data interface{}
		if !req.Data.IsEmpty() {
			data = req.Data
		}
		created, err := custom.Create(ctx, s.driver, req.Type, data)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetSubject(created.ID.String())
		return created, nil
	})
}

// AuditUpdate fills in the status, subject or data of an existing row. Only
// empty fields are written, and service keys may only update rows of their
// own service.
func (s *Identity) AuditUpdate(ctx context.Context, caller Caller, req *models.AuditUpdate) (*models.Audit, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuditUpdate, func(b *audit.Builder) (*models.Audit, error) {
		service, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		b.SetSubject(req.ID.String())
		req.ServiceID = serviceMask(service)

		row, err := s.driver.AuditUpdate(ctx, req)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, auth.ErrAuditNotFound
		}
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return row, nil
	})
}

// keyOf returns the authenticating key recorded on b as a models.Key, which
// is all the builder setters need.
func keyOf(b *audit.Builder) *models.Key {
	if b.KeyID() == nil {
		return nil
	}
	return &models.Key{ID: *b.KeyID()}
}
