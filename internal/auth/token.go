// Package auth - token.go implements the token engine. Tokens are HS256 JWTs
// signed with the value of the user's token key, so disabling, revoking or
// deleting that key invalidates every token it ever signed without any token
// state being stored.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/telemetry"
)

// TokenIssuer is the iss claim of every token.
const TokenIssuer = "sso"

// TokenKind scopes a token to one purpose.
type TokenKind string

const (
	TokenAccess        TokenKind = "access"
	TokenRefresh       TokenKind = "refresh"
	TokenRegister      TokenKind = "register"
	TokenResetPassword TokenKind = "reset_password"
	TokenRevoke        TokenKind = "revoke"
)

// Claims represents the JWT claims structure
type Claims struct {
	Kind TokenKind `json:"knd"`
	jwt.RegisteredClaims
}

// Token is an encoded token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// EncodeToken signs a token of kind for user within service using key.
func EncodeToken(service *models.Service, user *models.User, key *models.Key, kind TokenKind, ttl time.Duration) (*Token, error) {
	if key == nil || key.Value == "" {
		return nil, errors.New("token signing key is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{service.ID.String()},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	value, err := token.SignedString([]byte(key.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	telemetry.TokensIssuedTotal.WithLabelValues(string(kind)).Inc()
	return &Token{Value: value, ExpiresAt: expiresAt}, nil
}

// EncodeUserToken issues an access and refresh token pair.
func EncodeUserToken(service *models.Service, user *models.User, key *models.Key, accessTTL, refreshTTL time.Duration) (*models.UserToken, error) {
	access, err := EncodeToken(service, user, key, TokenAccess, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := EncodeToken(service, user, key, TokenRefresh, refreshTTL)
	if err != nil {
		return nil, err
	}
	return &models.UserToken{
		User:                user,
		AccessToken:         access.Value,
		AccessTokenExpires:  access.ExpiresAt.Unix(),
		RefreshToken:        refresh.Value,
		RefreshTokenExpires: refresh.ExpiresAt.Unix(),
	}, nil
}

// DecodeUnsafe reads the subject and kind of a token without verifying its
// signature. The result only selects the key used for DecodeToken and must
// not be trusted on its own. The audience must still be serviceID.
func DecodeUnsafe(token string, serviceID uuid.UUID) (uuid.UUID, TokenKind, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrTokenInvalidOrExpired, err)
	}
	if !slices.Contains(claims.Audience, serviceID.String()) {
		return uuid.Nil, "", fmt.Errorf("%w: audience mismatch", ErrTokenInvalidOrExpired)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: invalid subject", ErrTokenInvalidOrExpired)
	}
	return userID, claims.Kind, nil
}

// DecodeToken verifies token against key and checks that it was issued to user
// within service for kind. Every failure is ErrTokenInvalidOrExpired.
func DecodeToken(service *models.Service, user *models.User, key *models.Key, kind TokenKind, token string) (*Claims, error) {
	if key == nil || !key.IsEnabled || key.IsRevoked || key.Value == "" {
		return nil, fmt.Errorf("%w: signing key unusable", ErrTokenInvalidOrExpired)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(service.ID.String()),
		jwt.WithSubject(user.ID.String()),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(key.Value), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalidOrExpired, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalidOrExpired
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalidOrExpired, kind, claims.Kind)
	}
	return claims, nil
}
