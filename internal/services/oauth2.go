package services

import (
	"context"
	"fmt"

	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/auth/oauth2"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/telemetry"
	"github.com/sso-registry/sso/pkg/checksum"
)

// GithubOauth2URL starts a GitHub login for the calling service.
func (s *Identity) GithubOauth2URL(ctx context.Context, caller Caller) (*Oauth2URLResponse, error) {
	return s.oauth2URL(ctx, caller, audit.TypeAuthGithubOauth2Url, s.providers.Github, auth.ErrServiceProviderGithubDisabled)
}

// GithubOauth2Callback completes a GitHub login.
func (s *Identity) GithubOauth2Callback(ctx context.Context, caller Caller, req *Oauth2CallbackRequest) (*models.UserToken, error) {
	return s.oauth2Callback(ctx, caller, audit.TypeAuthGithubOauth2Callback, s.providers.Github, auth.ErrServiceProviderGithubDisabled, req)
}

// MicrosoftOauth2URL starts a Microsoft login for the calling service.
func (s *Identity) MicrosoftOauth2URL(ctx context.Context, caller Caller) (*Oauth2URLResponse, error) {
	return s.oauth2URL(ctx, caller, audit.TypeAuthMicrosoftOauth2Url, s.providers.Microsoft, auth.ErrServiceProviderMicrosoftDisabled)
}

// MicrosoftOauth2Callback completes a Microsoft login.
func (s *Identity) MicrosoftOauth2Callback(ctx context.Context, caller Caller, req *Oauth2CallbackRequest) (*models.UserToken, error) {
	return s.oauth2Callback(ctx, caller, audit.TypeAuthMicrosoftOauth2Callback, s.providers.Microsoft, auth.ErrServiceProviderMicrosoftDisabled, req)
}

// oauth2URL stores a CSRF row for a fresh state and returns the provider's
// authorization URL. The row is keyed by a digest of the state and holds the
// PKCE verifier sealed with the state as associated data, so a row can only
// be opened with the state it was issued for.
func (s *Identity) oauth2URL(ctx context.Context, caller Caller, typ string, provider oauth2.Provider, disabled error) (*Oauth2URLResponse, error) {
	return audit.Result(ctx, s.driver, caller.Meta, typ, func(b *audit.Builder) (*Oauth2URLResponse, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		if provider == nil || s.csrf == nil {
			return nil, disabled
		}

		state, err := auth.GenerateKeyValue()
		if err != nil {
			return nil, err
		}
		verifier := oauth2.GenerateVerifier()
		url, err := provider.AuthURL(ctx, service, state, verifier)
		if err != nil {
			return nil, auth.BadRequest(err)
		}

		key := checksum.SHA256Hex(state)
		sealed, err := s.csrf.Seal(verifier, key)
		if err != nil {
			return nil, err
		}
		if _, err := s.driver.CsrfCreate(ctx, models.NewCsrfCreate(key, sealed, s.cfg.AccessTokenTTL(), service.ID)); err != nil {
			return nil, auth.BadRequest(err)
		}
		return &Oauth2URLResponse{URL: url}, nil
	})
}

// oauth2Callback consumes the CSRF row for the returned state, exchanges the
// code and logs in the user with the email address the provider returned.
func (s *Identity) oauth2Callback(ctx context.Context, caller Caller, typ string, provider oauth2.Provider, disabled error, req *Oauth2CallbackRequest) (*models.UserToken, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, typ, func(b *audit.Builder) (*models.UserToken, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		if provider == nil || s.csrf == nil {
			return nil, disabled
		}

		key := checksum.SHA256Hex(req.State)
		csrf, err := s.driver.CsrfRead(ctx, key)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		if csrf == nil {
			return nil, auth.ErrCsrfNotFoundOrUsed
		}
		if csrf.ServiceID != service.ID {
			return nil, auth.ErrServiceMismatch
		}
		verifier, err := s.csrf.Open(csrf.Value, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrCsrfNotFoundOrUsed, err)
		}

		emailAddr, err := provider.Exchange(ctx, service, req.Code, verifier)
		telemetry.RecordAuthAttempt(provider.Name(), err)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return s.oauth2Login(ctx, b, service, emailAddr)
	})
}

// oauth2Login issues a token pair for the user with emailAddr. Users are not
// created here; they must already exist with a token key for the service.
func (s *Identity) oauth2Login(ctx context.Context, b *audit.Builder, service *models.Service, emailAddr string) (*models.UserToken, error) {
	user, err := auth.UserReadEmailChecked(ctx, s.driver, b, emailAddr)
	if err != nil {
		return nil, auth.Conceal(err)
	}
	key, err := auth.KeyReadUserChecked(ctx, s.driver, service, b, user, models.KeyTypeToken)
	if err != nil {
		return nil, auth.Conceal(err)
	}
	return auth.EncodeUserToken(service, user, key, s.cfg.AccessTokenTTL(), s.cfg.RefreshTokenTTL())
}
