// Package services implements the identity operations exposed by the API.
// Each operation authenticates the calling key, performs its reads and writes
// through the storage driver, and is recorded as exactly one audit row by
// audit.Result, whether it succeeds or fails. Emails are sent after the audit
// row is written so a slow mail server never holds a lock or a transaction.
package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/auth/oauth2"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/crypto"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/email"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/validation"
)

// Caller identifies who is making a request: the audit metadata of the
// request and the key value from its Authorization header.
type Caller struct {
	Meta audit.Meta
	Key  string
}

// Identity runs every identity operation against one storage driver.
type Identity struct {
	driver    storage.Driver
	cfg       *config.AuthConfig
	meta      *auth.PasswordMetaChecker
	providers *oauth2.Providers
	csrf      *crypto.Cipher
	mailer    email.Sender
}

// NewIdentity creates the identity service. providers and csrf may be nil
// when no OAuth2 provider is configured.
func NewIdentity(
	driver storage.Driver,
	cfg *config.AuthConfig,
	meta *auth.PasswordMetaChecker,
	providers *oauth2.Providers,
	csrf *crypto.Cipher,
	mailer email.Sender,
) *Identity {
	if providers == nil {
		providers = &oauth2.Providers{}
	}
	return &Identity{
		driver:    driver,
		cfg:       cfg,
		meta:      meta,
		providers: providers,
		csrf:      csrf,
		mailer:    mailer,
	}
}

// Driver returns the storage driver.
func (s *Identity) Driver() storage.Driver {
	return s.driver
}

// validate checks req against its struct tags.
func validate(req interface{}) error {
	if err := validation.Struct(req); err != nil {
		return auth.BadRequest(err)
	}
	return nil
}

// send delivers t. A failed delivery fails the request; the audit row has
// already recorded the state change.
func (s *Identity) send(ctx context.Context, t *email.Template) error {
	if t == nil {
		return nil
	}
	if err := s.mailer.Send(ctx, t); err != nil {
		slog.Error("email delivery failed", "kind", t.Kind, "error", err)
		return auth.BadRequest(err)
	}
	return nil
}

// authenticateService requires a service key.
func (s *Identity) authenticateService(ctx context.Context, b *audit.Builder, caller Caller) (*models.Service, error) {
	service, err := auth.KeyServiceAuthenticate(ctx, s.driver, b, caller.Key)
	if err != nil {
		return nil, auth.Conceal(err)
	}
	return service, nil
}

// authenticate accepts a service or a root key. The service is nil for root
// keys.
func (s *Identity) authenticate(ctx context.Context, b *audit.Builder, caller Caller) (*models.Service, error) {
	service, err := auth.KeyAuthenticate(ctx, s.driver, b, caller.Key)
	if err != nil {
		return nil, auth.Conceal(err)
	}
	return service, nil
}

// serviceMask restricts storage calls to service. Root keys are unrestricted.
func serviceMask(service *models.Service) *uuid.UUID {
	if service == nil {
		return nil
	}
	id := service.ID
	return &id
}
