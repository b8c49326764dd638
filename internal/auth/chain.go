// Package auth - chain.go implements key authentication. A request is
// authenticated by a service key, optionally bound to a user by the
// User-Authorization header, or by a root key with global authority.
// Every entity found along the way is attached to the audit builder, even
// when a later check fails, so failed requests are still attributable.
package auth

import (
	"context"
	"crypto/subtle"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/telemetry"
)

// KeyRootAuthenticate requires keyValue to be an enabled root key.
func KeyRootAuthenticate(ctx context.Context, driver storage.Driver, b *audit.Builder, keyValue string) error {
	_, err := keyRootAuthenticate(ctx, driver, b, keyValue)
	telemetry.RecordAuthAttempt("root_key", err)
	return err
}

// KeyServiceAuthenticate requires keyValue to be an enabled service key of an
// enabled service. When the audit meta carries a user credential, that
// credential must also verify against the service.
func KeyServiceAuthenticate(ctx context.Context, driver storage.Driver, b *audit.Builder, keyValue string) (*models.Service, error) {
	service, err := keyServiceAuthenticate(ctx, driver, b, keyValue)
	if err == nil {
		err = checkAuditUser(ctx, driver, b, service)
	}
	telemetry.RecordAuthAttempt("service_key", err)
	if err != nil {
		return nil, err
	}
	return service, nil
}

// KeyAuthenticate tries KeyServiceAuthenticate and falls back to a root key.
// A nil service with a nil error means the caller holds a root key.
func KeyAuthenticate(ctx context.Context, driver storage.Driver, b *audit.Builder, keyValue string) (*models.Service, error) {
	service, err := keyServiceAuthenticate(ctx, driver, b, keyValue)
	if err == nil {
		err = checkAuditUser(ctx, driver, b, service)
	}
	if err == nil {
		telemetry.RecordAuthAttempt("service_key", nil)
		return service, nil
	}
	telemetry.RecordAuthAttempt("service_key", err)

	if _, rootErr := keyRootAuthenticate(ctx, driver, b, keyValue); rootErr != nil {
		telemetry.RecordAuthAttempt("root_key", rootErr)
		return nil, rootErr
	}
	telemetry.RecordAuthAttempt("root_key", nil)
	return nil, nil
}

func keyRootAuthenticate(ctx context.Context, driver storage.Driver, b *audit.Builder, keyValue string) (*models.Key, error) {
	if keyValue == "" {
		return nil, ErrKeyUndefined
	}
	key, err := driver.KeyRead(ctx, models.KeyReadRootValue(keyValue), nil)
	if err != nil {
		return nil, Unauthorized(err)
	}
	if key == nil || !valueEqual(key.Value, keyValue) {
		return nil, ErrKeyNotFound
	}
	b.Key(key)
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

func keyServiceAuthenticate(ctx context.Context, driver storage.Driver, b *audit.Builder, keyValue string) (*models.Service, error) {
	if keyValue == "" {
		return nil, ErrKeyUndefined
	}
	key, err := driver.KeyRead(ctx, models.KeyReadServiceValue(keyValue), nil)
	if err != nil {
		return nil, Unauthorized(err)
	}
	if key == nil || !valueEqual(key.Value, keyValue) {
		return nil, ErrKeyNotFound
	}
	b.Key(key)
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if key.ServiceID == nil {
		return nil, ErrKeyServiceUndefined
	}

	service, err := driver.ServiceRead(ctx, *key.ServiceID, nil)
	if err != nil {
		return nil, Unauthorized(err)
	}
	// A disabled service is indistinguishable from a missing one.
	if service == nil || !service.IsEnabled {
		return nil, ErrServiceNotFound
	}
	b.Service(service)
	return service, nil
}

// checkAuditUser verifies the user credential carried by the audit meta, if
// any. A key credential must be an enabled user key of type key; a token
// credential must be a valid access token for the service.
func checkAuditUser(ctx context.Context, driver storage.Driver, b *audit.Builder, service *models.Service) error {
	cred := b.Meta().User
	if cred == nil {
		return nil
	}

	if !cred.IsToken() {
		key, err := KeyReadUserValueChecked(ctx, driver, service, b, cred.Value, models.KeyTypeKey)
		if err != nil {
			return err
		}
		if key.UserID == nil {
			return ErrUserNotFound
		}
		_, err = UserReadIDChecked(ctx, driver, b, *key.UserID)
		return err
	}

	userID, _, err := DecodeUnsafe(cred.Value, service.ID)
	if err != nil {
		return err
	}
	user, err := UserReadIDChecked(ctx, driver, b, userID)
	if err != nil {
		return err
	}
	key, err := KeyReadUserChecked(ctx, driver, service, b, user, models.KeyTypeToken)
	if err != nil {
		return err
	}
	_, err = DecodeToken(service, user, key, TokenAccess, cred.Value)
	return err
}

// UserReadIDChecked reads a user by id and requires it to be enabled.
func UserReadIDChecked(ctx context.Context, driver storage.Driver, b *audit.Builder, id uuid.UUID) (*models.User, error) {
	user, err := UserReadIDUnchecked(ctx, driver, b, id)
	if err != nil {
		return nil, err
	}
	if !user.IsEnabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// UserReadIDUnchecked reads a user by id regardless of its state.
func UserReadIDUnchecked(ctx context.Context, driver storage.Driver, b *audit.Builder, id uuid.UUID) (*models.User, error) {
	return userRead(ctx, driver, b, models.UserReadID(id))
}

// UserReadEmailChecked reads a user by email and requires it to be enabled.
func UserReadEmailChecked(ctx context.Context, driver storage.Driver, b *audit.Builder, email string) (*models.User, error) {
	user, err := userRead(ctx, driver, b, models.UserReadEmail(email))
	if err != nil {
		return nil, err
	}
	if !user.IsEnabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func userRead(ctx context.Context, driver storage.Driver, b *audit.Builder, read *models.UserRead) (*models.User, error) {
	user, err := driver.UserRead(ctx, read)
	if err != nil {
		return nil, BadRequest(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	b.User(user)
	return user, nil
}

// KeyReadUserChecked reads the user's key of typ within service and requires
// it to be enabled and not revoked.
func KeyReadUserChecked(ctx context.Context, driver storage.Driver, service *models.Service, b *audit.Builder, user *models.User, typ models.KeyType) (*models.Key, error) {
	key, err := KeyReadUserUnchecked(ctx, driver, service, b, user, typ)
	if err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// KeyReadUserUnchecked reads the user's key of typ within service regardless
// of its state.
func KeyReadUserUnchecked(ctx context.Context, driver storage.Driver, service *models.Service, b *audit.Builder, user *models.User, typ models.KeyType) (*models.Key, error) {
	key, err := driver.KeyRead(ctx, models.KeyReadUserID(service.ID, user.ID, true, false, typ), nil)
	if err != nil {
		return nil, BadRequest(err)
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}
	b.UserKey(key)
	return key, nil
}

// KeyReadUserValueChecked reads a user key of typ by value within service and
// requires it to be enabled and not revoked.
func KeyReadUserValueChecked(ctx context.Context, driver storage.Driver, service *models.Service, b *audit.Builder, value string, typ models.KeyType) (*models.Key, error) {
	key, err := KeyReadUserValueUnchecked(ctx, driver, service, b, value, typ)
	if err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// KeyReadUserValueUnchecked reads a user key of typ by value within service
// regardless of its state.
func KeyReadUserValueUnchecked(ctx context.Context, driver storage.Driver, service *models.Service, b *audit.Builder, value string, typ models.KeyType) (*models.Key, error) {
	if value == "" {
		return nil, ErrKeyUndefined
	}
	key, err := driver.KeyRead(ctx, models.KeyReadUserValue(service.ID, value, true, false, typ), nil)
	if err != nil {
		return nil, BadRequest(err)
	}
	if key == nil || !valueEqual(key.Value, value) {
		return nil, ErrKeyNotFound
	}
	b.UserKey(key)
	return key, nil
}

func checkKey(key *models.Key) error {
	switch {
	case !key.IsEnabled:
		return ErrKeyDisabled
	case key.IsRevoked:
		return ErrKeyRevoked
	}
	return nil
}

func valueEqual(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
