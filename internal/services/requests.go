package services

import (
	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
)

// Requests and responses of the authentication operations. Field limits are
// enforced by validate before an operation touches storage.

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=1000"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email,max=1000"`
	Locale   *string `json:"locale,omitempty" validate:"omitempty,locale"`
	Timezone *string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

type RegisterConfirmRequest struct {
	Token              string  `json:"token" validate:"required,max=1000"`
	Password           *string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
	PasswordAllowReset *bool   `json:"password_allow_reset,omitempty"`
}

type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=1000"`
}

type ResetPasswordConfirmRequest struct {
	Token    string `json:"token" validate:"required,max=1000"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type UpdateEmailRequest struct {
	Email    string `json:"email" validate:"required,email,max=1000"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	NewEmail string `json:"new_email" validate:"required,email,max=1000"`
}

type UpdatePasswordRequest struct {
	Email       string `json:"email" validate:"required,email,max=1000"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// TokenRequest carries a token and, for revoke operations, an optional audit
// type to record alongside the revocation.
type TokenRequest struct {
	Token string  `json:"token" validate:"required,max=1000"`
	Audit *string `json:"audit,omitempty" validate:"omitempty,min=1,max=1000"`
}

// KeyRequest carries a user key value.
type KeyRequest struct {
	Key   string  `json:"key" validate:"required,max=1000"`
	Audit *string `json:"audit,omitempty" validate:"omitempty,min=1,max=1000"`
}

type TotpRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Totp   string    `json:"totp" validate:"required,min=1,max=10"`
}

type Oauth2CallbackRequest struct {
	Code  string `json:"code" validate:"required,max=1000"`
	State string `json:"state" validate:"required,max=1000"`
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	Meta models.UserPasswordMeta `json:"meta"`
	*models.UserToken
}

// PasswordMetaResponse is returned by operations that set a password.
type PasswordMetaResponse struct {
	Meta models.UserPasswordMeta `json:"meta"`
}

// AuditResponse is returned by revoke operations. Audit is the id of the
// custom audit row, when one was requested.
type AuditResponse struct {
	Audit *uuid.UUID `json:"audit,omitempty"`
}

// TokenResponse is returned by token and key verification.
type TokenResponse struct {
	User  *models.User `json:"user"`
	Audit *uuid.UUID   `json:"audit,omitempty"`
}

// Oauth2URLResponse is returned by Oauth2URL.
type Oauth2URLResponse struct {
	URL string `json:"url"`
}
