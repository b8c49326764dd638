package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
)

// UserCreateRequest creates a user. Password is hashed before it is stored.
type UserCreateRequest struct {
	IsEnabled             bool    `json:"is_enabled"`
	Name                  string  `json:"name" validate:"required,max=100"`
	Email                 string  `json:"email" validate:"required,email,max=1000"`
	Locale                *string `json:"locale,omitempty" validate:"omitempty,locale"`
	Timezone              *string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	PasswordAllowReset    bool    `json:"password_allow_reset"`
	PasswordRequireUpdate bool    `json:"password_require_update"`
	Password              *string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
}

// UserCreateResponse is returned by UserCreate.
type UserCreateResponse struct {
	Meta models.UserPasswordMeta `json:"meta"`
	Data *models.User            `json:"data"`
}

// UserList lists users.
func (s *Identity) UserList(ctx context.Context, caller Caller, filter *models.UserListFilter) ([]*models.User, error) {
	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeUserList, func(b *audit.Builder) ([]*models.User, error) {
		if _, err := s.authenticate(ctx, b, caller); err != nil {
			return nil, err
		}
		if filter == nil {
			filter = &models.UserListFilter{}
		}
		users, err := s.driver.UserList(ctx, filter)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return users, nil
	})
}

// UserCreate creates a user with an optional password.
func (s *Identity) UserCreate(ctx context.Context, caller Caller, req *UserCreateRequest) (*UserCreateResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	meta := s.meta.Check(ctx, req.Password)

	user, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeUserCreate, func(b *audit.Builder) (*models.User, error) {
		if _, err := s.authenticate(ctx, b, caller); err != nil {
			return nil, err
		}

		create := models.NewUserCreate(req.IsEnabled, req.Name, req.Email)
		create.PasswordAllowReset = req.PasswordAllowReset
		create.PasswordRequireUpdate = req.PasswordRequireUpdate
		if req.Locale != nil {
			create.Locale = *req.Locale
		}
		if req.Timezone != nil {
			create.Timezone = *req.Timezone
		}
		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				return nil, auth.BadRequest(err)
			}
			create.PasswordHash = &hash
		}

		user, err := s.driver.UserCreate(ctx, create)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.User(user).SetSubject(user.Subject())
		return user, nil
	})
	if err != nil {
		return nil, err
	}
	return &UserCreateResponse{Meta: meta, Data: user}, nil
}

// UserRead reads a user.
func (s *Identity) UserRead(ctx context.Context, caller Caller, id uuid.UUID) (*models.User, error) {
	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeUserRead, func(b *audit.Builder) (*models.User, error) {
		if _, err := s.authenticate(ctx, b, caller); err != nil {
			return nil, err
		}
		return s.userRead(ctx, b, id)
	})
}

// UserUpdate updates a user and records the changed fields.
func (s *Identity) UserUpdate(ctx context.Context, caller Caller, req *models.UserUpdate) (*models.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeUserUpdate, func(b *audit.Builder) (*models.User, error) {
		if _, err := s.authenticate(ctx, b, caller); err != nil {
			return nil, err
		}
		previous, err := s.userRead(ctx, b, req.ID)
		if err != nil {
			return nil, err
		}
		user, err := s.driver.UserUpdate(ctx, req)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetData(user.Diff(previous))
		return user, nil
	})
}

// UserDelete deletes a user and their keys.
func (s *Identity) UserDelete(ctx context.Context, caller Caller, id uuid.UUID) error {
	_, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeUserDelete, func(b *audit.Builder) (struct{}, error) {
		if _, err := s.authenticate(ctx, b, caller); err != nil {
			return struct{}{}, err
		}
		if _, err := s.userRead(ctx, b, id); err != nil {
			return struct{}{}, err
		}
		if _, err := s.driver.UserDelete(ctx, id); err != nil {
			return struct{}{}, auth.BadRequest(err)
		}
		return struct{}{}, nil
	})
	return err
}

// userRead does not record the user on the builder: the row belongs to the
// caller, the user is only its subject.
func (s *Identity) userRead(ctx context.Context, b *audit.Builder, id uuid.UUID) (*models.User, error) {
	b.SetSubject(id.String())
	user, err := s.driver.UserRead(ctx, models.UserReadID(id))
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	if user == nil {
		return nil, auth.ErrUserNotFound
	}
	return user, nil
}
