// user_repository.go implements UserRepository, providing database queries for
// user accounts: creation with email uniqueness, lookup by id or email, field
// updates and dedicated email/password updates.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
)

const userColumns = `created_at, updated_at, user_id, user_is_enabled, user_name, user_email,
	user_locale, user_timezone, user_password_allow_reset, user_password_require_update,
	user_password_hash`

// UserRepository handles user database operations
type UserRepository struct {
	q querier
}

// UserList lists users ordered by id.
func (r *UserRepository) UserList(ctx context.Context, filter *models.UserListFilter) ([]*models.User, error) {
	var w where
	if filter.GtID != nil {
		w.add("user_id > ?", *filter.GtID)
	}
	if len(filter.IDs) > 0 {
		w.add("user_id IN (?)", filter.IDs)
	}
	if len(filter.Emails) > 0 {
		w.add("user_email IN (?)", filter.Emails)
	}

	query := `SELECT ` + userColumns + ` FROM sso_user` + w.String() +
		` ORDER BY user_id ASC LIMIT ?`

	users := []*models.User{}
	if err := r.q.sel(ctx, &users, query, append(w.args, listLimit(filter.Limit))...); err != nil {
		return nil, wrap("list users", err)
	}
	return users, nil
}

// UserCreate creates a new user. It returns storage.ErrConflict when the email
// address is already in use.
func (r *UserRepository) UserCreate(ctx context.Context, create *models.UserCreate) (*models.User, error) {
	existing, err := r.UserRead(ctx, models.UserReadEmail(create.Email))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, wrap("create user", storage.ErrConflict)
	}

	now := time.Now().UTC()
	user := &models.User{
		CreatedAt:             now,
		UpdatedAt:             now,
		ID:                    uuid.New(),
		IsEnabled:             create.IsEnabled,
		Name:                  create.Name,
		Email:                 create.Email,
		Locale:                create.Locale,
		Timezone:              create.Timezone,
		PasswordAllowReset:    create.PasswordAllowReset,
		PasswordRequireUpdate: create.PasswordRequireUpdate,
		PasswordHash:          create.PasswordHash,
	}
	if user.Locale == "" {
		user.Locale = models.UserDefaultLocale
	}
	if user.Timezone == "" {
		user.Timezone = models.UserDefaultTimezone
	}

	query := `
		INSERT INTO sso_user (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.q.exec(ctx, query,
		user.CreatedAt,
		user.UpdatedAt,
		user.ID,
		user.IsEnabled,
		user.Name,
		user.Email,
		user.Locale,
		user.Timezone,
		user.PasswordAllowReset,
		user.PasswordRequireUpdate,
		user.PasswordHash,
	)
	if err != nil {
		return nil, wrap("create user", err)
	}
	return user, nil
}

// UserRead retrieves a user by ID or by email address.
func (r *UserRepository) UserRead(ctx context.Context, read *models.UserRead) (*models.User, error) {
	var (
		query string
		arg   interface{}
	)
	switch {
	case read.ID != nil:
		query = `SELECT ` + userColumns + ` FROM sso_user WHERE user_id = ?`
		arg = *read.ID
	case read.Email != nil:
		query = `SELECT ` + userColumns + ` FROM sso_user WHERE user_email = ?`
		arg = *read.Email
	default:
		return nil, nil
	}

	user := &models.User{}
	found, err := r.q.get(ctx, user, query, arg)
	if err != nil {
		return nil, wrap("read user", err)
	}
	if !found {
		return nil, nil
	}
	return user, nil
}

// UserUpdate applies the non-nil fields of update.
func (r *UserRepository) UserUpdate(ctx context.Context, update *models.UserUpdate) (*models.User, error) {
	user, err := r.UserRead(ctx, models.UserReadID(update.ID))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, wrap("update user", storage.ErrNotFound)
	}

	if update.IsEnabled != nil {
		user.IsEnabled = *update.IsEnabled
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Locale != nil {
		user.Locale = *update.Locale
	}
	if update.Timezone != nil {
		user.Timezone = *update.Timezone
	}
	if update.PasswordAllowReset != nil {
		user.PasswordAllowReset = *update.PasswordAllowReset
	}
	if update.PasswordRequireUpdate != nil {
		user.PasswordRequireUpdate = *update.PasswordRequireUpdate
	}
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sso_user SET
			updated_at = ?, user_is_enabled = ?, user_name = ?, user_locale = ?, user_timezone = ?,
			user_password_allow_reset = ?, user_password_require_update = ?
		WHERE user_id = ?
	`
	_, err = r.q.exec(ctx, query,
		user.UpdatedAt,
		user.IsEnabled,
		user.Name,
		user.Locale,
		user.Timezone,
		user.PasswordAllowReset,
		user.PasswordRequireUpdate,
		user.ID,
	)
	if err != nil {
		return nil, wrap("update user", err)
	}
	return user, nil
}

// UserUpdateEmail changes a user's email address.
func (r *UserRepository) UserUpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	existing, err := r.UserRead(ctx, models.UserReadEmail(email))
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != id {
		return nil, wrap("update user email", storage.ErrConflict)
	}

	n, err := r.q.exec(ctx,
		`UPDATE sso_user SET updated_at = ?, user_email = ? WHERE user_id = ?`,
		time.Now().UTC(), email, id)
	if err != nil {
		return nil, wrap("update user email", err)
	}
	if n == 0 {
		return nil, wrap("update user email", storage.ErrNotFound)
	}
	return r.UserRead(ctx, models.UserReadID(id))
}

// UserUpdatePassword stores a new password hash and clears the update flag.
func (r *UserRepository) UserUpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (*models.User, error) {
	n, err := r.q.exec(ctx, `
		UPDATE sso_user SET
			updated_at = ?, user_password_hash = ?, user_password_require_update = ?
		WHERE user_id = ?
	`, time.Now().UTC(), passwordHash, false, id)
	if err != nil {
		return nil, wrap("update user password", err)
	}
	if n == 0 {
		return nil, wrap("update user password", storage.ErrNotFound)
	}
	return r.UserRead(ctx, models.UserReadID(id))
}

// UserDelete deletes a user and, by cascade, their keys.
func (r *UserRepository) UserDelete(ctx context.Context, id uuid.UUID) (int64, error) {
	n, err := r.q.exec(ctx, `DELETE FROM sso_user WHERE user_id = ?`, id)
	return n, wrap("delete user", err)
}
