package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
)

func tokenFixtures() (*models.Service, *models.User, *models.Key) {
	service := &models.Service{ID: uuid.New(), IsEnabled: true}
	user := &models.User{ID: uuid.New(), IsEnabled: true}
	key := &models.Key{ID: uuid.New(), IsEnabled: true, Type: models.KeyTypeToken, Value: "token-signing-key"}
	return service, user, key
}

func TestEncodeDecodeToken(t *testing.T) {
	service, user, key := tokenFixtures()

	token, err := EncodeToken(service, user, key, TokenAccess, time.Hour)
	if err != nil {
		t.Fatalf("EncodeToken() error: %v", err)
	}
	if token.Value == "" {
		t.Fatal("EncodeToken() returned empty value")
	}
	if d := time.Until(token.ExpiresAt); d <= 0 || d > time.Hour {
		t.Errorf("ExpiresAt = %v, want within the next hour", token.ExpiresAt)
	}

	claims, err := DecodeToken(service, user, key, TokenAccess, token.Value)
	if err != nil {
		t.Fatalf("DecodeToken() error: %v", err)
	}
	if claims.Subject != user.ID.String() {
		t.Errorf("sub = %q, want %q", claims.Subject, user.ID)
	}
	if claims.Issuer != TokenIssuer {
		t.Errorf("iss = %q, want %q", claims.Issuer, TokenIssuer)
	}
	if claims.ID == "" {
		t.Error("jti is empty")
	}
}

func TestEncodeToken_Rejects(t *testing.T) {
	service, user, key := tokenFixtures()

	if _, err := EncodeToken(service, user, &models.Key{}, TokenAccess, time.Hour); err == nil {
		t.Error("EncodeToken() with empty key value: expected error")
	}
	if _, err := EncodeToken(service, user, key, TokenAccess, 0); err == nil {
		t.Error("EncodeToken() with zero ttl: expected error")
	}
}

func TestDecodeToken_Failures(t *testing.T) {
	service, user, key := tokenFixtures()
	valid, err := EncodeToken(service, user, key, TokenRefresh, time.Hour)
	if err != nil {
		t.Fatalf("EncodeToken() error: %v", err)
	}

	otherService := &models.Service{ID: uuid.New()}
	otherUser := &models.User{ID: uuid.New()}
	otherKey := &models.Key{IsEnabled: true, Value: "another-signing-key"}
	disabledKey := &models.Key{IsEnabled: false, Value: key.Value}
	revokedKey := &models.Key{IsEnabled: true, IsRevoked: true, Value: key.Value}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Kind: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{service.ID.String()},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredValue, err := expired.SignedString([]byte(key.Value))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Kind: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{service.ID.String()},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noneValue, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	tests := []struct {
		name    string
		service *models.Service
		user    *models.User
		key     *models.Key
		kind    TokenKind
		token   string
	}{
		{"wrong kind", service, user, key, TokenAccess, valid.Value},
		{"wrong service", otherService, user, key, TokenRefresh, valid.Value},
		{"wrong user", service, otherUser, key, TokenRefresh, valid.Value},
		{"wrong key", service, user, otherKey, TokenRefresh, valid.Value},
		{"disabled key", service, user, disabledKey, TokenRefresh, valid.Value},
		{"revoked key", service, user, revokedKey, TokenRefresh, valid.Value},
		{"expired", service, user, key, TokenRefresh, expiredValue},
		{"alg none", service, user, key, TokenRefresh, noneValue},
		{"garbage", service, user, key, TokenRefresh, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToken(tt.service, tt.user, tt.key, tt.kind, tt.token)
			if !errors.Is(err, ErrTokenInvalidOrExpired) {
				t.Errorf("DecodeToken() error = %v, want ErrTokenInvalidOrExpired", err)
			}
		})
	}
}

func TestDecodeUnsafe(t *testing.T) {
	service, user, key := tokenFixtures()
	token, err := EncodeToken(service, user, key, TokenRevoke, time.Hour)
	if err != nil {
		t.Fatalf("EncodeToken() error: %v", err)
	}

	userID, kind, err := DecodeUnsafe(token.Value, service.ID)
	if err != nil {
		t.Fatalf("DecodeUnsafe() error: %v", err)
	}
	if userID != user.ID {
		t.Errorf("userID = %s, want %s", userID, user.ID)
	}
	if kind != TokenRevoke {
		t.Errorf("kind = %q, want %q", kind, TokenRevoke)
	}

	if _, _, err := DecodeUnsafe(token.Value, uuid.New()); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Errorf("DecodeUnsafe() other service error = %v, want ErrTokenInvalidOrExpired", err)
	}
	if _, _, err := DecodeUnsafe("garbage", service.ID); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Errorf("DecodeUnsafe() garbage error = %v, want ErrTokenInvalidOrExpired", err)
	}
}

func TestEncodeUserToken(t *testing.T) {
	service, user, key := tokenFixtures()
	pair, err := EncodeUserToken(service, user, key, time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatalf("EncodeUserToken() error: %v", err)
	}
	if pair.User != user {
		t.Error("pair.User is not the issuing user")
	}
	if pair.RefreshTokenExpires <= pair.AccessTokenExpires {
		t.Errorf("refresh expiry %d not after access expiry %d", pair.RefreshTokenExpires, pair.AccessTokenExpires)
	}
	if _, err := DecodeToken(service, user, key, TokenAccess, pair.AccessToken); err != nil {
		t.Errorf("access token does not decode: %v", err)
	}
	if _, err := DecodeToken(service, user, key, TokenRefresh, pair.RefreshToken); err != nil {
		t.Errorf("refresh token does not decode: %v", err)
	}
	if _, err := DecodeToken(service, user, key, TokenAccess, pair.RefreshToken); err == nil {
		t.Error("refresh token accepted as access token")
	}
}
