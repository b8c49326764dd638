package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/sso-registry/sso/internal/db/models"
)

// KeyValueLength is the number of random bytes in a generated key value.
const KeyValueLength = 32

// GenerateKeyValue returns a new random URL-safe key value.
func GenerateKeyValue() (string, error) {
	randomBytes := make([]byte, KeyValueLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// NewKeyValue returns a value suitable for a key of typ. Totp keys hold a
// base32 secret; key and token keys hold random bytes.
func NewKeyValue(typ models.KeyType, name string) (string, error) {
	switch typ {
	case models.KeyTypeKey, models.KeyTypeToken:
		return GenerateKeyValue()
	case models.KeyTypeTotp:
		return GenerateTotpSecret(name)
	}
	return "", ErrKeyTypeInvalid
}
