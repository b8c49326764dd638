package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("hash = %q, want argon2id PHC string", hash)
	}
	if v := PasswordHashVersionOf(hash); v != PasswordHashVersion {
		t.Errorf("PasswordHashVersionOf() = %d, want %d", v, PasswordHashVersion)
	}

	needsUpdate, err := PasswordCheck(&hash, "correct horse battery staple")
	if err != nil {
		t.Fatalf("PasswordCheck() error: %v", err)
	}
	if needsUpdate {
		t.Error("fresh hash reported as needing update")
	}

	if _, err := PasswordCheck(&hash, "wrong"); !errors.Is(err, ErrPasswordIncorrect) {
		t.Errorf("PasswordCheck(wrong) error = %v, want ErrPasswordIncorrect", err)
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	a, _ := HashPassword("password")
	b, _ := HashPassword("password")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestPasswordCheck_LegacyBcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	hash := string(raw)
	if v := PasswordHashVersionOf(hash); v != 0 {
		t.Errorf("PasswordHashVersionOf(bcrypt) = %d, want 0", v)
	}

	needsUpdate, err := PasswordCheck(&hash, "legacy-password")
	if err != nil {
		t.Fatalf("PasswordCheck() error: %v", err)
	}
	if !needsUpdate {
		t.Error("bcrypt hash not reported as needing update")
	}
	if _, err := PasswordCheck(&hash, "nope"); !errors.Is(err, ErrPasswordIncorrect) {
		t.Errorf("PasswordCheck(wrong) error = %v, want ErrPasswordIncorrect", err)
	}
}

func TestPasswordCheck_WeakParametersNeedUpdate(t *testing.T) {
	weak := DefaultArgon2Params
	weak.Iterations = 1
	hash, err := hashPasswordWith("password", weak)
	if err != nil {
		t.Fatalf("hashPasswordWith() error: %v", err)
	}
	needsUpdate, err := PasswordCheck(&hash, "password")
	if err != nil {
		t.Fatalf("PasswordCheck() error: %v", err)
	}
	if !needsUpdate {
		t.Error("hash with fewer iterations not reported as needing update")
	}
}

func TestPasswordCheck_Errors(t *testing.T) {
	empty := ""
	malformed := "$argon2id$v=19$m=abc$salt$hash"
	unknown := "plaintext"
	tests := []struct {
		name string
		hash *string
		want error
	}{
		{"nil hash", nil, ErrPasswordUndefined},
		{"empty hash", &empty, ErrPasswordUndefined},
		{"malformed argon2", &malformed, ErrPasswordHashInvalid},
		{"unknown format", &unknown, ErrPasswordHashInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PasswordCheck(tt.hash, "password"); !errors.Is(err, tt.want) {
				t.Errorf("PasswordCheck() error = %v, want %v", err, tt.want)
			}
		})
	}
}
