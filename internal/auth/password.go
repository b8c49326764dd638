// Package auth - password.go implements password hashing. New hashes are
// argon2id PHC strings (hash version 1). bcrypt hashes written by earlier
// releases (hash version 0) still verify and are reported as needing an update
// so callers can rehash on the next successful login.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// PasswordHashVersion is the version of hashes written by HashPassword.
	PasswordHashVersion = 1

	PasswordMinLength = 8
	PasswordMaxLength = 128
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follow the OWASP minimum for argon2id.
var DefaultArgon2Params = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword hashes password with argon2id using DefaultArgon2Params.
func HashPassword(password string) (string, error) {
	return hashPasswordWith(password, DefaultArgon2Params)
}

func hashPasswordWith(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// PasswordHashVersionOf returns the hash version of an encoded hash, or -1 if
// the format is not recognised.
func PasswordHashVersionOf(encoded string) int {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return 1
	case isBcrypt(encoded):
		return 0
	}
	return -1
}

// PasswordCheck verifies candidate against hash. needsUpdate reports that the
// hash predates the current version or parameters and should be replaced.
func PasswordCheck(hash *string, candidate string) (needsUpdate bool, err error) {
	if hash == nil || *hash == "" {
		return false, ErrPasswordUndefined
	}

	switch PasswordHashVersionOf(*hash) {
	case 1:
		params, salt, key, err := decodeArgon2(*hash)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrPasswordHashInvalid, err)
		}
		other := argon2.IDKey([]byte(candidate), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
		if subtle.ConstantTimeCompare(key, other) != 1 {
			return false, ErrPasswordIncorrect
		}
		return params.weakerThan(DefaultArgon2Params), nil
	case 0:
		err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(candidate))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, ErrPasswordIncorrect
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrPasswordHashInvalid, err)
		}
		return true, nil
	}
	return false, ErrPasswordHashInvalid
}

func (p Argon2Params) weakerThan(other Argon2Params) bool {
	return p.Memory < other.Memory ||
		p.Iterations < other.Iterations ||
		p.Parallelism < other.Parallelism ||
		p.KeyLength < other.KeyLength
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// decodeArgon2 parses $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func decodeArgon2(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return p, nil, nil, errors.New("unexpected number of fields")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("hash: %w", err)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
