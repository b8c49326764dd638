// Package auth - errors.go defines the classified failures returned by the
// authentication chain, the token engine and the password policy. Every error
// carries a Category that the route layer turns into an HTTP status and the
// audit recorder stores as the status code of a failed request.
package auth

import (
	"errors"
	"net/http"

	"github.com/sso-registry/sso/internal/storage"
)

// Category groups errors by how a caller should react to them.
type Category int

const (
	CategoryInternal Category = iota
	CategoryNotFound
	CategoryDisabled
	CategoryRevoked
	CategoryUnauthorized
	CategoryForbidden
	CategoryBadRequest
	CategoryConflict
	CategoryLocked
	CategoryUnavailable
)

var categoryNames = map[Category]string{
	CategoryInternal:     "internal",
	CategoryNotFound:     "not_found",
	CategoryDisabled:     "disabled",
	CategoryRevoked:      "revoked",
	CategoryUnauthorized: "unauthorized",
	CategoryForbidden:    "forbidden",
	CategoryBadRequest:   "bad_request",
	CategoryConflict:     "conflict",
	CategoryLocked:       "locked",
	CategoryUnavailable:  "unavailable",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "internal"
}

// StatusCode returns the HTTP status for the category.
func (c Category) StatusCode() int {
	switch c {
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryDisabled, CategoryRevoked, CategoryBadRequest:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryConflict:
		return http.StatusConflict
	case CategoryLocked:
		return http.StatusLocked
	case CategoryUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error is a classified failure. Code is a stable identifier safe to return to
// clients; Err is the optional cause.
type Error struct {
	Category Category
	Code     string
	Err      error

	// opaque hides the codes below this error from clients.
	opaque bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the innermost classified code, so a wrapped
// ErrKeyNotFound still reports key_not_found.
func (e *Error) ErrorCode() string {
	var inner *Error
	if e.Err != nil && errors.As(e.Err, &inner) {
		return inner.ErrorCode()
	}
	return e.Code
}

// PublicCode returns the code reported to clients. It is ErrorCode unless a
// concealed error sits above the precise one.
func (e *Error) PublicCode() string {
	if e.opaque {
		return e.Code
	}
	var inner *Error
	if e.Err != nil && errors.As(e.Err, &inner) {
		return inner.PublicCode()
	}
	return e.Code
}

// StatusCode returns the HTTP status for the error's category.
func (e *Error) StatusCode() int {
	return e.Category.StatusCode()
}

func newError(category Category, code string) *Error {
	return &Error{Category: category, Code: code}
}

var (
	ErrKeyUndefined        = newError(CategoryUnauthorized, "key_undefined")
	ErrKeyNotFound         = newError(CategoryNotFound, "key_not_found")
	ErrKeyDisabled         = newError(CategoryDisabled, "key_disabled")
	ErrKeyRevoked          = newError(CategoryRevoked, "key_revoked")
	ErrKeyServiceUndefined = newError(CategoryUnauthorized, "key_service_undefined")
	ErrKeyTypeInvalid      = newError(CategoryBadRequest, "key_type_invalid")

	ErrServiceNotFound                  = newError(CategoryNotFound, "service_not_found")
	ErrServiceUserRegisterDisabled      = newError(CategoryBadRequest, "service_user_register_disabled")
	ErrServiceProviderLocalDisabled     = newError(CategoryBadRequest, "service_provider_local_disabled")
	ErrServiceProviderGithubDisabled    = newError(CategoryBadRequest, "service_provider_github_oauth2_disabled")
	ErrServiceProviderMicrosoftDisabled = newError(CategoryBadRequest, "service_provider_microsoft_oauth2_disabled")
	ErrServiceMismatch                  = newError(CategoryBadRequest, "service_mismatch")
	ErrServiceRootRequired              = newError(CategoryForbidden, "root_key_required")
	ErrUserNotFound                     = newError(CategoryNotFound, "user_not_found")
	ErrUserDisabled                     = newError(CategoryDisabled, "user_disabled")
	ErrUserPasswordUpdateRequired       = newError(CategoryForbidden, "user_password_update_required")
	ErrUserResetPasswordDisabled        = newError(CategoryBadRequest, "user_reset_password_disabled")
	ErrPasswordUndefined                = newError(CategoryBadRequest, "password_undefined")
	ErrPasswordIncorrect                = newError(CategoryBadRequest, "password_incorrect")
	ErrPasswordHashInvalid              = newError(CategoryBadRequest, "password_hash_invalid")
	ErrTokenInvalidOrExpired            = newError(CategoryUnauthorized, "token_invalid_or_expired")
	ErrCsrfNotFoundOrUsed               = newError(CategoryBadRequest, "csrf_not_found_or_used")
	ErrTotpInvalid                      = newError(CategoryBadRequest, "totp_invalid")
	ErrAuditNotFound                    = newError(CategoryNotFound, "audit_not_found")
	ErrOauth2ProviderUnavailable        = newError(CategoryBadRequest, "oauth2_provider_unavailable")
	ErrOauth2EmailUndefined             = newError(CategoryBadRequest, "oauth2_email_undefined")
	ErrPwnedPasswordsDisabled           = newError(CategoryBadRequest, "pwned_passwords_disabled")
)

// CategoryOf classifies err. The outermost *Error wins; storage errors map to
// their own categories; anything else is internal.
func CategoryOf(err error) Category {
	var e *Error
	switch {
	case err == nil:
		return CategoryInternal
	case errors.As(err, &e):
		return e.Category
	case storage.IsLocked(err):
		return CategoryLocked
	case errors.Is(err, storage.ErrConflict):
		return CategoryConflict
	case errors.Is(err, storage.ErrUnavailable):
		return CategoryUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return CategoryNotFound
	}
	return CategoryInternal
}

// classify wraps err in category. Storage conditions that say nothing about
// the request itself keep their own category.
func classify(category Category, err error) error {
	if err == nil {
		return nil
	}
	switch c := CategoryOf(err); c {
	case CategoryConflict, CategoryLocked, CategoryUnavailable:
		return &Error{Category: c, Code: c.String(), Err: err}
	}
	return &Error{Category: category, Code: category.String(), Err: err}
}

// Unauthorized marks err as a failed authentication of the calling key.
func Unauthorized(err error) error {
	return classify(CategoryUnauthorized, err)
}

// Conceal marks err as a failed authentication. Clients see only
// "unauthorized" whether the account, key or token was missing, disabled,
// revoked or did not match; ErrorCode keeps the precise code for audit rows.
// Storage conditions keep their own category and are not concealed.
func Conceal(err error) error {
	err = classify(CategoryUnauthorized, err)
	var e *Error
	if errors.As(err, &e) && e.Category == CategoryUnauthorized {
		e.opaque = true
	}
	return err
}

// BadRequest marks err as a rejected request.
func BadRequest(err error) error {
	return classify(CategoryBadRequest, err)
}

// Forbidden marks err as an authenticated caller without permission.
func Forbidden(err error) error {
	return classify(CategoryForbidden, err)
}
