package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
)

// Services are managed with root keys only.

// requireRoot authenticates a root key.
func (s *Identity) requireRoot(ctx context.Context, b *audit.Builder, caller Caller) error {
	service, err := s.authenticate(ctx, b, caller)
	if err != nil {
		return err
	}
	if service != nil {
		return auth.ErrServiceRootRequired
	}
	return nil
}

// ServiceList lists services.
func (s *Identity) ServiceList(ctx context.Context, caller Caller, filter *models.ServiceListFilter) ([]*models.Service, error) {
	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeServiceList, func(b *audit.Builder) ([]*models.Service, error) {
		if err := s.requireRoot(ctx, b, caller); err != nil {
			return nil, err
		}
		if filter == nil {
			filter = &models.ServiceListFilter{}
		}
		services, err := s.driver.ServiceList(ctx, filter)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return services, nil
	})
}

// ServiceCreate creates a service.
func (s *Identity) ServiceCreate(ctx context.Context, caller Caller, req *models.ServiceCreate) (*models.Service, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeServiceCreate, func(b *audit.Builder) (*models.Service, error) {
		if err := s.requireRoot(ctx, b, caller); err != nil {
			return nil, err
		}
		service, err := s.driver.ServiceCreate(ctx, req)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetSubject(service.Subject())
		return service, nil
	})
}

// ServiceRead reads a service.
func (s *Identity) ServiceRead(ctx context.Context, caller Caller, id uuid.UUID) (*models.Service, error) {
	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeServiceRead, func(b *audit.Builder) (*models.Service, error) {
		if err := s.requireRoot(ctx, b, caller); err != nil {
			return nil, err
		}
		return s.serviceRead(ctx, b, id)
	})
}

// ServiceUpdate updates a service and records the changed fields.
func (s *Identity) ServiceUpdate(ctx context.Context, caller Caller, req *models.ServiceUpdate) (*models.Service, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeServiceUpdate, func(b *audit.Builder) (*models.Service, error) {
		if err := s.requireRoot(ctx, b, caller); err != nil {
			return nil, err
		}
		previous, err := s.serviceRead(ctx, b, req.ID)
		if err != nil {
			return nil, err
		}
		service, err := s.driver.ServiceUpdate(ctx, req)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetData(service.Diff(previous))
		return service, nil
	})
}

// ServiceDelete deletes a service with its keys and CSRF rows.
func (s *Identity) ServiceDelete(ctx context.Context, caller Caller, id uuid.UUID) error {
	_, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeServiceDelete, func(b *audit.Builder) (struct{}, error) {
		if err := s.requireRoot(ctx, b, caller); err != nil {
			return struct{}{}, err
		}
		if _, err := s.serviceRead(ctx, b, id); err != nil {
			return struct{}{}, err
		}
		if _, err := s.driver.ServiceDelete(ctx, id); err != nil {
			return struct{}{}, auth.BadRequest(err)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Identity) serviceRead(ctx context.Context, b *audit.Builder, id uuid.UUID) (*models.Service, error) {
	b.SetSubject(id.String())
	service, err := s.driver.ServiceRead(ctx, id, nil)
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	if service == nil {
		return nil, auth.ErrServiceNotFound
	}
	return service, nil
}
