// Package models - user.go defines the User model. Users are global; they are
// bound to services through user keys.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// UserDefaultLocale is assigned when a user is created without a locale.
	UserDefaultLocale = "en"
	// UserDefaultTimezone is assigned when a user is created without a timezone.
	UserDefaultTimezone = "Etc/UTC"
)

// User is an end user account.
type User struct {
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
	ID                    uuid.UUID `db:"user_id" json:"id"`
	IsEnabled             bool      `db:"user_is_enabled" json:"is_enabled"`
	Name                  string    `db:"user_name" json:"name"`
	Email                 string    `db:"user_email" json:"email"`
	Locale                string    `db:"user_locale" json:"locale"`
	Timezone              string    `db:"user_timezone" json:"timezone"`
	PasswordAllowReset    bool      `db:"user_password_allow_reset" json:"password_allow_reset"`
	PasswordRequireUpdate bool      `db:"user_password_require_update" json:"password_require_update"`
	PasswordHash          *string   `db:"user_password_hash" json:"-"`
}

// Subject identifies the user in audit records.
func (u *User) Subject() string {
	return u.ID.String()
}

// Diff returns the fields that changed between previous and u. The password
// hash is never part of a diff.
func (u *User) Diff(previous *User) Diff {
	return NewDiffBuilder().
		Compare("is_enabled", u.IsEnabled, previous.IsEnabled).
		Compare("name", u.Name, previous.Name).
		Compare("email", u.Email, previous.Email).
		Compare("locale", u.Locale, previous.Locale).
		Compare("timezone", u.Timezone, previous.Timezone).
		Compare("password_allow_reset", u.PasswordAllowReset, previous.PasswordAllowReset).
		Compare("password_require_update", u.PasswordRequireUpdate, previous.PasswordRequireUpdate).
		Build()
}

// UserCreate holds the fields for a new user. PasswordHash must already be
// hashed by the password policy.
type UserCreate struct {
	IsEnabled             bool
	Name                  string
	Email                 string
	Locale                string
	Timezone              string
	PasswordAllowReset    bool
	PasswordRequireUpdate bool
	PasswordHash          *string
}

// NewUserCreate returns a UserCreate with default locale and timezone.
func NewUserCreate(isEnabled bool, name, email string) *UserCreate {
	return &UserCreate{
		IsEnabled: isEnabled,
		Name:      name,
		Email:     email,
		Locale:    UserDefaultLocale,
		Timezone:  UserDefaultTimezone,
	}
}

// UserRead selects a user by id or by email. Exactly one should be set.
type UserRead struct {
	ID    *uuid.UUID
	Email *string
}

// UserReadID reads a user by id.
func UserReadID(id uuid.UUID) *UserRead {
	return &UserRead{ID: &id}
}

// UserReadEmail reads a user by email.
func UserReadEmail(email string) *UserRead {
	return &UserRead{Email: &email}
}

// UserUpdate holds optional field updates. Email and password changes go
// through dedicated driver calls so an unhashed password can never be stored
// by accident.
type UserUpdate struct {
	ID                    uuid.UUID `json:"-"`
	IsEnabled             *bool     `json:"is_enabled,omitempty"`
	Name                  *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Locale                *string   `json:"locale,omitempty" validate:"omitempty,max=10"`
	Timezone              *string   `json:"timezone,omitempty" validate:"omitempty,timezone"`
	PasswordAllowReset    *bool     `json:"password_allow_reset,omitempty"`
	PasswordRequireUpdate *bool     `json:"password_require_update,omitempty"`
}

// UserListFilter restricts a user list. Results are ordered by id.
type UserListFilter struct {
	GtID   *uuid.UUID
	IDs    []uuid.UUID
	Emails []string
	Limit  int
}

// UserPasswordMeta carries advisory password metadata. A nil field means the
// check was not performed or failed.
type UserPasswordMeta struct {
	PasswordStrength *int  `json:"password_strength"`
	PasswordPwned    *bool `json:"password_pwned"`
}

// UserToken is an access/refresh token pair issued to a user.
type UserToken struct {
	User                *User  `json:"user"`
	AccessToken         string `json:"access_token"`
	AccessTokenExpires  int64  `json:"access_token_expires"`
	RefreshToken        string `json:"refresh_token"`
	RefreshTokenExpires int64  `json:"refresh_token_expires"`
}

// UserTokenAccess is a single verified access token.
type UserTokenAccess struct {
	User               *User  `json:"user"`
	AccessToken        string `json:"access_token"`
	AccessTokenExpires int64  `json:"access_token_expires"`
}

// UserKey is a verified user key.
type UserKey struct {
	User *User  `json:"user"`
	Key  string `json:"key"`
}
