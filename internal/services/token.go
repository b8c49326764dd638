package services

import (
	"context"

	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/telemetry"
)

// TokenVerify checks an access token and returns the user it was issued to.
func (s *Identity) TokenVerify(ctx context.Context, caller Caller, req *TokenRequest) (*TokenResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	res, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthTokenVerify, func(b *audit.Builder) (*TokenResponse, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		user, key, err := s.tokenUser(ctx, service, b, req.Token, true)
		if err != nil {
			return nil, err
		}
		if _, err := auth.DecodeToken(service, user, key, auth.TokenAccess, req.Token); err != nil {
			return nil, auth.Conceal(err)
		}

		custom, err := s.customAudit(ctx, b, req.Audit)
		if err != nil {
			return nil, err
		}
		return &TokenResponse{User: user, Audit: custom.Audit}, nil
	})
	telemetry.RecordAuthAttempt("token", err)
	return res, err
}

// TokenRefresh exchanges a refresh token for a new token pair.
func (s *Identity) TokenRefresh(ctx context.Context, caller Caller, req *TokenRequest) (*models.UserToken, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthTokenRefresh, func(b *audit.Builder) (*models.UserToken, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		user, key, err := s.tokenUser(ctx, service, b, req.Token, true)
		if err != nil {
			return nil, err
		}
		if _, err := auth.DecodeToken(service, user, key, auth.TokenRefresh, req.Token); err != nil {
			return nil, auth.Conceal(err)
		}
		if _, err := s.customAudit(ctx, b, req.Audit); err != nil {
			return nil, err
		}
		return auth.EncodeUserToken(service, user, key, s.cfg.AccessTokenTTL(), s.cfg.RefreshTokenTTL())
	})
}

// TokenRevoke disables and revokes the key that signed token. Every token the
// key ever signed stops verifying. Any token kind is accepted.
func (s *Identity) TokenRevoke(ctx context.Context, caller Caller, req *TokenRequest) (*AuditResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthTokenRevoke, func(b *audit.Builder) (*AuditResponse, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		_, kind, err := auth.DecodeUnsafe(req.Token, service.ID)
		if err != nil {
			return nil, auth.Conceal(err)
		}
		user, key, err := s.tokenUser(ctx, service, b, req.Token, false)
		if err != nil {
			return nil, err
		}
		if _, err := auth.DecodeToken(service, user, key, kind, req.Token); err != nil {
			return nil, auth.Conceal(err)
		}
		if err := s.disableKey(ctx, key, service); err != nil {
			return nil, err
		}
		return s.customAudit(ctx, b, req.Audit)
	})
}

// KeyVerify checks a user key of type key and returns its user.
func (s *Identity) KeyVerify(ctx context.Context, caller Caller, req *KeyRequest) (*TokenResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	res, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthKeyVerify, func(b *audit.Builder) (*TokenResponse, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		key, err := auth.KeyReadUserValueChecked(ctx, s.driver, service, b, req.Key, models.KeyTypeKey)
		if err != nil {
			return nil, auth.Conceal(err)
		}
		if key.UserID == nil {
			return nil, auth.Conceal(auth.ErrUserNotFound)
		}
		user, err := auth.UserReadIDChecked(ctx, s.driver, b, *key.UserID)
		if err != nil {
			return nil, auth.Conceal(err)
		}

		custom, err := s.customAudit(ctx, b, req.Audit)
		if err != nil {
			return nil, err
		}
		return &TokenResponse{User: user, Audit: custom.Audit}, nil
	})
	telemetry.RecordAuthAttempt("key", err)
	return res, err
}

// KeyRevoke disables and revokes a user key of type key.
func (s *Identity) KeyRevoke(ctx context.Context, caller Caller, req *KeyRequest) (*AuditResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthKeyRevoke, func(b *audit.Builder) (*AuditResponse, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		key, err := auth.KeyReadUserValueUnchecked(ctx, s.driver, service, b, req.Key, models.KeyTypeKey)
		if err != nil {
			return nil, auth.Conceal(err)
		}
		if err := s.disableKey(ctx, key, service); err != nil {
			return nil, err
		}
		return s.customAudit(ctx, b, req.Audit)
	})
}

// TotpVerify checks a TOTP code against the user's totp key.
func (s *Identity) TotpVerify(ctx context.Context, caller Caller, req *TotpRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	_, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthTotpVerify, func(b *audit.Builder) (struct{}, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return struct{}{}, err
		}
		user, err := auth.UserReadIDChecked(ctx, s.driver, b, req.UserID)
		if err != nil {
			return struct{}{}, auth.Conceal(err)
		}
		key, err := auth.KeyReadUserChecked(ctx, s.driver, service, b, user, models.KeyTypeTotp)
		if err != nil {
			return struct{}{}, auth.Conceal(err)
		}
		if err := auth.TotpVerify(key.Value, req.Totp); err != nil {
			return struct{}{}, auth.Conceal(err)
		}
		return struct{}{}, nil
	})
	telemetry.RecordAuthAttempt("totp", err)
	return err
}

func (s *Identity) disableKey(ctx context.Context, key *models.Key, service *models.Service) error {
	disabled, revoked := false, true
	_, err := s.driver.KeyUpdate(ctx, &models.KeyUpdate{ID: key.ID, IsEnabled: &disabled, IsRevoked: &revoked}, serviceMask(service))
	if err != nil {
		return auth.BadRequest(err)
	}
	return nil
}
