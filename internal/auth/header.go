package auth

import (
	"strings"

	"github.com/sso-registry/sso/internal/db/models"
)

// ParseHeader extracts a key or token from an Authorization style header.
// Accepted forms are "$KEY", "key $KEY" and "token $TOKEN"; any other scheme
// with a value (for example "Bearer $KEY") is read as a key. An empty header
// returns nil.
func ParseHeader(value string) *models.HeaderAuth {
	parts := strings.Fields(value)
	switch {
	case len(parts) == 0:
		return nil
	case len(parts) == 1:
		return &models.HeaderAuth{Kind: models.HeaderAuthKey, Value: parts[0]}
	case parts[0] == "token":
		return &models.HeaderAuth{Kind: models.HeaderAuthToken, Value: parts[1]}
	}
	return &models.HeaderAuth{Kind: models.HeaderAuthKey, Value: parts[1]}
}

// ParseKey extracts a key value from an Authorization header. Accepted forms
// are "$KEY", "key $KEY" and "Bearer $KEY". It returns false when no value is
// present.
func ParseKey(value string) (string, bool) {
	if strings.HasPrefix(value, "key ") || strings.HasPrefix(value, "Bearer ") {
		parts := strings.Fields(value)
		if len(parts) < 2 {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
