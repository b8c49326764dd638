package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sso-registry/sso/internal/audit"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/email"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/telemetry"
)

// Login checks a user's password and issues an access and refresh token pair.
func (s *Identity) Login(ctx context.Context, caller Caller, req *LoginRequest) (*LoginResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	meta := s.meta.Check(ctx, &req.Password)

	token, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalLogin, func(b *audit.Builder) (*models.UserToken, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		user, err := auth.UserReadEmailChecked(ctx, s.driver, b, req.Email)
		if err != nil {
			return nil, auth.Conceal(err)
		}
		key, err := auth.KeyReadUserChecked(ctx, s.driver, service, b, user, models.KeyTypeToken)
		if err != nil {
			return nil, auth.Conceal(err)
		}

		needsUpdate, err := auth.PasswordCheck(user.PasswordHash, req.Password)
		if err != nil {
			return nil, auth.Conceal(err)
		}
		// Only a caller holding the password learns that it must change.
		if user.PasswordRequireUpdate {
			return nil, auth.ErrUserPasswordUpdateRequired
		}
		if needsUpdate {
			s.rehash(ctx, user, req.Password)
		}
		return auth.EncodeUserToken(service, user, key, s.cfg.AccessTokenTTL(), s.cfg.RefreshTokenTTL())
	})
	telemetry.RecordAuthAttempt("local", err)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Meta: meta, UserToken: token}, nil
}

// rehash replaces a hash that predates the current parameters. The login has
// already succeeded, so failures are only logged.
func (s *Identity) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := auth.HashPassword(password)
	if err == nil {
		_, err = s.driver.UserUpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		slog.Warn("password rehash failed", "user_id", user.ID, "error", err)
	}
}

// Register creates the user and their token key for the calling service if
// they do not exist yet, and emails a register token. Registering an existing
// enabled user sends a new token, so an expired one can be replaced.
func (s *Identity) Register(ctx context.Context, caller Caller, req *RegisterRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	tmpl, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalRegister, func(b *audit.Builder) (*email.Template, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		if !service.UserAllowRegister {
			return nil, auth.ErrServiceUserRegisterDisabled
		}

		var user *models.User
		var key *models.Key
		err = s.driver.ExclusiveLock(ctx, storage.LockRegister, func(tx storage.Driver) error {
			var err error
			user, err = registerUser(ctx, tx, req)
			if err != nil {
				return err
			}
			key, err = registerKey(ctx, tx, service, user, req.Name)
			return err
		})
		b.User(user).UserKey(key)
		if err != nil {
			return nil, auth.BadRequest(err)
		}

		token, err := auth.EncodeToken(service, user, key, auth.TokenRegister, s.cfg.AccessTokenTTL())
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return email.Register(service, user, token.Value, caller.Meta)
	})
	if err != nil {
		return err
	}
	return s.send(ctx, tmpl)
}

func registerUser(ctx context.Context, tx storage.Driver, req *RegisterRequest) (*models.User, error) {
	user, err := tx.UserRead(ctx, models.UserReadEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if user != nil {
		if !user.IsEnabled {
			return nil, auth.ErrUserDisabled
		}
		return user, nil
	}

	// Registered users may reset their password in case the register token
	// expires before it is used.
	create := models.NewUserCreate(true, req.Name, req.Email)
	create.PasswordAllowReset = true
	if req.Locale != nil {
		create.Locale = *req.Locale
	}
	if req.Timezone != nil {
		create.Timezone = *req.Timezone
	}
	return tx.UserCreate(ctx, create)
}

func registerKey(ctx context.Context, tx storage.Driver, service *models.Service, user *models.User, name string) (*models.Key, error) {
	key, err := tx.KeyRead(ctx, models.KeyReadUserID(service.ID, user.ID, true, false, models.KeyTypeToken), nil)
	if err != nil || key != nil {
		return key, err
	}
	value, err := auth.NewKeyValue(models.KeyTypeToken, name)
	if err != nil {
		return nil, err
	}
	return tx.KeyCreate(ctx, &models.KeyCreate{
		IsEnabled: true,
		Type:      models.KeyTypeToken,
		Name:      name,
		Value:     value,
		ServiceID: &service.ID,
		UserID:    &user.ID,
	})
}

// RegisterConfirm consumes a register token, optionally setting the user's
// password, and emails a revoke token.
func (s *Identity) RegisterConfirm(ctx context.Context, caller Caller, req *RegisterConfirmRequest) (*PasswordMetaResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	meta := s.meta.Check(ctx, req.Password)

	tmpl, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalRegisterConfirm, func(b *audit.Builder) (*email.Template, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		if !service.UserAllowRegister {
			return nil, auth.ErrServiceUserRegisterDisabled
		}

		user, key, err := s.tokenUser(ctx, service, b, req.Token, true)
		if err != nil {
			return nil, err
		}
		if _, err := auth.DecodeToken(service, user, key, auth.TokenRegister, req.Token); err != nil {
			return nil, auth.Conceal(err)
		}
		revoke, err := auth.EncodeToken(service, user, key, auth.TokenRevoke, s.cfg.RevokeTokenTTL())
		if err != nil {
			return nil, auth.BadRequest(err)
		}

		if req.Password != nil {
			if user, err = s.setPassword(ctx, user, *req.Password); err != nil {
				return nil, err
			}
			if req.PasswordAllowReset != nil {
				user, err = s.driver.UserUpdate(ctx, &models.UserUpdate{ID: user.ID, PasswordAllowReset: req.PasswordAllowReset})
				if err != nil {
					return nil, auth.BadRequest(err)
				}
			}
		}
		return email.RegisterConfirm(service, user, revoke.Value, caller.Meta)
	})
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, tmpl); err != nil {
		return nil, err
	}
	return &PasswordMetaResponse{Meta: meta}, nil
}

// RegisterRevoke consumes a revoke token sent after registration.
func (s *Identity) RegisterRevoke(ctx context.Context, caller Caller, req *TokenRequest) (*AuditResponse, error) {
	return s.revoke(ctx, caller, audit.TypeAuthLocalRegisterRevoke, req)
}

// ResetPassword emails a reset password token. It reports success whatever
// happens so callers cannot learn which email addresses have accounts; the
// audit row still records the real outcome.
func (s *Identity) ResetPassword(ctx context.Context, caller Caller, req *ResetPasswordRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	tmpl, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalResetPassword, func(b *audit.Builder) (*email.Template, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		user, err := auth.UserReadEmailChecked(ctx, s.driver, b, req.Email)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		key, err := auth.KeyReadUserChecked(ctx, s.driver, service, b, user, models.KeyTypeToken)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		if !user.PasswordAllowReset {
			return nil, auth.ErrUserResetPasswordDisabled
		}

		token, err := auth.EncodeToken(service, user, key, auth.TokenResetPassword, s.cfg.AccessTokenTTL())
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return email.ResetPassword(service, user, token.Value, caller.Meta)
	})
	if err != nil {
		slog.Debug("reset password request rejected", "error", err)
		return nil
	}
	if err := s.send(ctx, tmpl); err != nil {
		slog.Warn("reset password email not sent", "error", err)
	}
	return nil
}

// ResetPasswordConfirm consumes a reset password token, sets the new password
// and emails a revoke token.
func (s *Identity) ResetPasswordConfirm(ctx context.Context, caller Caller, req *ResetPasswordConfirmRequest) (*PasswordMetaResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	meta := s.meta.Check(ctx, &req.Password)

	tmpl, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalResetPasswordConfirm, func(b *audit.Builder) (*email.Template, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		user, key, err := s.tokenUser(ctx, service, b, req.Token, true)
		if err != nil {
			return nil, err
		}
		if !user.PasswordAllowReset {
			return nil, auth.ErrUserResetPasswordDisabled
		}
		if _, err := auth.DecodeToken(service, user, key, auth.TokenResetPassword, req.Token); err != nil {
			return nil, auth.Conceal(err)
		}
		revoke, err := auth.EncodeToken(service, user, key, auth.TokenRevoke, s.cfg.RevokeTokenTTL())
		if err != nil {
			return nil, auth.BadRequest(err)
		}

		// Storing the password also clears password_require_update.
		if user, err = s.setPassword(ctx, user, req.Password); err != nil {
			return nil, err
		}
		return email.ResetPasswordConfirm(service, user, revoke.Value, caller.Meta)
	})
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, tmpl); err != nil {
		return nil, err
	}
	return &PasswordMetaResponse{Meta: meta}, nil
}

// ResetPasswordRevoke consumes a revoke token sent after a password reset.
func (s *Identity) ResetPasswordRevoke(ctx context.Context, caller Caller, req *TokenRequest) (*AuditResponse, error) {
	return s.revoke(ctx, caller, audit.TypeAuthLocalResetPasswordRevoke, req)
}

// UpdateEmail changes a user's email address after checking their password.
// The notification with a revoke token goes to the previous address.
func (s *Identity) UpdateEmail(ctx context.Context, caller Caller, req *UpdateEmailRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	tmpl, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalUpdateEmail, func(b *audit.Builder) (*email.Template, error) {
		service, user, key, err := s.passwordUser(ctx, b, caller, req.Email, req.Password, true)
		if err != nil {
			return nil, err
		}
		revoke, err := auth.EncodeToken(service, user, key, auth.TokenRevoke, s.cfg.RevokeTokenTTL())
		if err != nil {
			return nil, auth.BadRequest(err)
		}

		oldEmail := user.Email
		updated, err := s.driver.UserUpdateEmail(ctx, user.ID, req.NewEmail)
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		b.SetData(updated.Diff(user))
		return email.UpdateEmail(service, updated, oldEmail, revoke.Value, caller.Meta)
	})
	if err != nil {
		return err
	}
	return s.send(ctx, tmpl)
}

// UpdateEmailRevoke consumes a revoke token sent after an email change.
func (s *Identity) UpdateEmailRevoke(ctx context.Context, caller Caller, req *TokenRequest) (*AuditResponse, error) {
	return s.revoke(ctx, caller, audit.TypeAuthLocalUpdateEmailRevoke, req)
}

// UpdatePassword changes a user's password after checking the current one.
// Users flagged with password_require_update may use it.
func (s *Identity) UpdatePassword(ctx context.Context, caller Caller, req *UpdatePasswordRequest) (*PasswordMetaResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	meta := s.meta.Check(ctx, &req.NewPassword)

	tmpl, err := audit.Result(ctx, s.driver, caller.Meta, audit.TypeAuthLocalUpdatePassword, func(b *audit.Builder) (*email.Template, error) {
		service, user, key, err := s.passwordUser(ctx, b, caller, req.Email, req.Password, false)
		if err != nil {
			return nil, err
		}
		revoke, err := auth.EncodeToken(service, user, key, auth.TokenRevoke, s.cfg.RevokeTokenTTL())
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		if user, err = s.setPassword(ctx, user, req.NewPassword); err != nil {
			return nil, err
		}
		return email.UpdatePassword(service, user, revoke.Value, caller.Meta)
	})
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, tmpl); err != nil {
		return nil, err
	}
	return &PasswordMetaResponse{Meta: meta}, nil
}

// UpdatePasswordRevoke consumes a revoke token sent after a password change.
func (s *Identity) UpdatePasswordRevoke(ctx context.Context, caller Caller, req *TokenRequest) (*AuditResponse, error) {
	return s.revoke(ctx, caller, audit.TypeAuthLocalUpdatePasswordRevoke, req)
}

// passwordUser authenticates the service and checks the password of the user
// with emailAddr. With requireCurrent set, users that must update their
// password are refused.
func (s *Identity) passwordUser(ctx context.Context, b *audit.Builder, caller Caller, emailAddr, password string, requireCurrent bool) (*models.Service, *models.User, *models.Key, error) {
	service, err := s.authenticateService(ctx, b, caller)
	if err != nil {
		return nil, nil, nil, err
	}
	user, err := auth.UserReadEmailChecked(ctx, s.driver, b, emailAddr)
	if err != nil {
		return nil, nil, nil, auth.Conceal(err)
	}
	key, err := auth.KeyReadUserChecked(ctx, s.driver, service, b, user, models.KeyTypeToken)
	if err != nil {
		return nil, nil, nil, auth.Conceal(err)
	}
	if _, err := auth.PasswordCheck(user.PasswordHash, password); err != nil {
		return nil, nil, nil, auth.Conceal(err)
	}
	if requireCurrent && user.PasswordRequireUpdate {
		return nil, nil, nil, auth.ErrUserPasswordUpdateRequired
	}
	return service, user, key, nil
}

// tokenUser resolves the user and token key a token claims to be for. The
// token itself is not verified; callers must DecodeToken with the key.
func (s *Identity) tokenUser(ctx context.Context, service *models.Service, b *audit.Builder, token string, checked bool) (*models.User, *models.Key, error) {
	userID, _, err := auth.DecodeUnsafe(token, service.ID)
	if err != nil {
		return nil, nil, auth.Conceal(err)
	}

	var user *models.User
	var key *models.Key
	if checked {
		user, err = auth.UserReadIDChecked(ctx, s.driver, b, userID)
		if err == nil {
			key, err = auth.KeyReadUserChecked(ctx, s.driver, service, b, user, models.KeyTypeToken)
		}
	} else {
		user, err = auth.UserReadIDUnchecked(ctx, s.driver, b, userID)
		if err == nil {
			key, err = auth.KeyReadUserUnchecked(ctx, s.driver, service, b, user, models.KeyTypeToken)
		}
	}
	if err != nil {
		return nil, nil, auth.Conceal(err)
	}
	return user, key, nil
}

func (s *Identity) setPassword(ctx context.Context, user *models.User, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	updated, err := s.driver.UserUpdatePassword(ctx, user.ID, hash)
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	return updated, nil
}

// revoke consumes a revoke token: the user is disabled and every key they
// hold for the service is disabled and revoked. The checks and writes run
// under LockRevoke so a revoke token takes effect at most once.
func (s *Identity) revoke(ctx context.Context, caller Caller, typ string, req *TokenRequest) (*AuditResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return audit.Result(ctx, s.driver, caller.Meta, typ, func(b *audit.Builder) (*AuditResponse, error) {
		service, err := s.authenticateService(ctx, b, caller)
		if err != nil {
			return nil, err
		}
		// The user and key may already be disabled; revoking is still allowed.
		user, key, err := s.tokenUser(ctx, service, b, req.Token, false)
		if err != nil {
			return nil, err
		}
		if _, err := auth.DecodeToken(service, user, key, auth.TokenRevoke, req.Token); err != nil {
			return nil, auth.Conceal(err)
		}

		err = s.driver.ExclusiveLock(ctx, storage.LockRevoke, func(tx storage.Driver) error {
			current, err := tx.KeyRead(ctx, models.KeyReadID(key.ID), nil)
			if err != nil {
				return err
			}
			if current == nil || !current.IsEnabled || current.IsRevoked {
				return auth.ErrTokenInvalidOrExpired
			}

			disabled, revoked := false, true
			if _, err := tx.UserUpdate(ctx, &models.UserUpdate{ID: user.ID, IsEnabled: &disabled}); err != nil {
				return err
			}
			_, err = tx.KeyUpdateMany(ctx, user.ID, service.ID, &models.KeyUpdate{IsEnabled: &disabled, IsRevoked: &revoked})
			return err
		})
		if errors.Is(err, auth.ErrTokenInvalidOrExpired) {
			return nil, auth.Conceal(err)
		}
		if err != nil {
			return nil, auth.BadRequest(err)
		}
		return s.customAudit(ctx, b, req.Audit)
	})
}

// customAudit writes an additional audit row of type typ when requested.
func (s *Identity) customAudit(ctx context.Context, b *audit.Builder, typ *string) (*AuditResponse, error) {
	res := &AuditResponse{}
	if typ == nil {
		return res, nil
	}
	created, err := b.Create(ctx, s.driver, *typ, nil)
	if err != nil {
		return nil, auth.BadRequest(err)
	}
	res.Audit = &created.ID
	return res, nil
}
