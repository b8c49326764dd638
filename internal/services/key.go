package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
)

// KeyCreateRequest creates a root, service or user key. Service keys may only
// create keys within their own service; the service id defaults to theirs.
type KeyCreateRequest struct {
	IsEnabled bool           `json:"is_enabled"`
	Type      models.KeyType `json:"type" validate:"required,oneof=key token totp"`
	Name      string         `json:"name" validate:"required,max=100"`
	ServiceID *uuid.UUID     `json:"service_id,omitempty"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
}

// KeyList lists keys visible to the caller.
func (s *Identity) KeyList(ctx context.Context, caller Caller, filter *models.KeyListFilter) ([]*models.Key, error) {
	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeKeyList, func(b *audit.Builder) ([]*models.Key, error) {
		service, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		if filter == nil {
			filter = &models.KeyListFilter{}
		}
		if service != nil {
			filter.ServiceID = &service.ID
		}
		keys, err := s.driver.KeyList(ctx, filter)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return keys, nil
	})
}

// KeyCreate creates a key with a generated value. The value is only ever
// returned here.
func (s *Identity) KeyCreate(ctx context.Context, caller Caller, req *KeyCreateRequest) (*models.KeyWithValue, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeKeyCreate, func(b *audit.Builder) (*models.KeyWithValue, error) {
		caller, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return nil, err
		}

		serviceID := req.ServiceID
		if caller != nil {
			if serviceID != nil && *serviceID != caller.ID {
				return nil, auth.ErrServiceMismatch
			}
			serviceID = &caller.ID
		}
		if err := s.checkKeyOwner(ctx, b, req, serviceID); err != nil {
			return nil, err
		}

		value, err := auth.NewKeyValue(req.Type, req.Name)
		if err != nil {
			return nil, err
		}
		key, err := s.driver.KeyCreate(ctx, &models.KeyCreate{
			IsEnabled: req.IsEnabled,
			Type:      req.Type,
			Name:      req.Name,
			Value:     value,
			ServiceID: serviceID,
			UserID:    req.UserID,
		})
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetSubject(key.Subject())
		return &models.KeyWithValue{Key: key, Value: value}, nil
	})
}

// checkKeyOwner requires the service and user a key is created for to exist.
// Root and service keys must be of type key; user keys need a service.
func (s *Identity) checkKeyOwner(ctx context.Context, b *audit.Builder, req *KeyCreateRequest, serviceID *uuid.UUID) error {
	if req.UserID == nil {
		if req.Type != models.KeyTypeKey {
			return auth.ErrKeyTypeInvalid
		}
	} else if serviceID == nil {
		return auth.ErrKeyServiceUndefined
	}

	if serviceID != nil {
		service, err := s.driver.ServiceRead(ctx, *serviceID, nil)
		if err != nil {
			return auth.BadRequest(err)
		}
		if service == nil {
			return auth.ErrServiceNotFound
		}
	}
	if req.UserID != nil {
		if _, err := auth.UserReadIDUnchecked(ctx, s.driver, b, *req.UserID); err != nil {
			return auth.BadRequest(err)
		}
	}
	return nil
}

// KeyRead reads a key visible to the caller.
func (s *Identity) KeyRead(ctx context.Context, caller Caller, id uuid.UUID) (*models.Key, error) {
	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeKeyRead, func(b *audit.Builder) (*models.Key, error) {
		service, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		return s.keyRead(ctx, b, service, id)
	})
}

// KeyUpdate updates a key visible to the caller and records the changed
// fields.
func (s *Identity) KeyUpdate(ctx context.Context, caller Caller, req *models.KeyUpdate) (*models.Key, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeKeyUpdate, func(b *audit.Builder) (*models.Key, error) {
		service, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		previous, err := s.keyRead(ctx, b, service, req.ID)
		if err != nil {
			return nil, err
		}
		key, err := s.driver.KeyUpdate(ctx, req, serviceMask(service))
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetData(key.Diff(previous))
		return key, nil
	})
}

// KeyDelete deletes a key visible to the caller.
func (s *Identity) KeyDelete(ctx context.Context, caller Caller, id uuid.UUID) error {
	_, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeKeyDelete, func(b *audit.Builder) (struct{}, error) {
		service, err := s.authenticate(ctx, b, caller)
		if err != nil {
			return struct{}{}, err
		}
		if _, err := s.keyRead(ctx, b, service, id); err != nil {
			return struct{}{}, err
		}
		if _, err := s.driver.KeyDelete(ctx, id, serviceMask(service)); err != nil {
			return struct{}{}, auth.BadRequest(err)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Identity) keyRead(ctx context.Context, b *audit.Builder, service *models.Service, id uuid.UUID) (*models.Key, error) {
	b.SetSubject(id.String())
	key, err := s.driver.KeyRead(ctx, models.KeyReadID(id), serviceMask(service))
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	if key == nil {
		return nil, auth.ErrKeyNotFound
	}
	return key, nil
}
