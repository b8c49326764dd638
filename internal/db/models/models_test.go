package models

import (
	"testing"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// User.Diff
// ---------------------------------------------------------------------------

func baseUser() *User {
	return &User{
		ID:                 uuid.New(),
		IsEnabled:          true,
		Name:               "Alice",
		Email:              "alice@example.com",
		Locale:             UserDefaultLocale,
		Timezone:           UserDefaultTimezone,
		PasswordAllowReset: true,
	}
}

func TestUserDiff_SingleField(t *testing.T) {
	fields := []struct {
		name   string
		mutate func(u *User)
		old    interface{}
		new    interface{}
	}{
		{"is_enabled", func(u *User) { u.IsEnabled = false }, true, false},
		{"name", func(u *User) { u.Name = "Bob" }, "Alice", "Bob"},
		{"email", func(u *User) { u.Email = "bob@example.com" }, "alice@example.com", "bob@example.com"},
		{"locale", func(u *User) { u.Locale = "fr" }, "en", "fr"},
		{"timezone", func(u *User) { u.Timezone = "Europe/Paris" }, "Etc/UTC", "Europe/Paris"},
		{"password_allow_reset", func(u *User) { u.PasswordAllowReset = false }, true, false},
		{"password_require_update", func(u *User) { u.PasswordRequireUpdate = true }, false, true},
	}

	for _, f := range fields {
		t.Run(f.name, func(t *testing.T) {
			a := baseUser()
			b := *a
			f.mutate(&b)

			d := b.Diff(a)
			if len(d) != 1 {
				t.Fatalf("Diff() len = %d, want 1: %v", len(d), d)
			}
			c, ok := d[f.name]
			if !ok {
				t.Fatalf("Diff() missing field %q: %v", f.name, d)
			}
			if c.Old != f.old || c.New != f.new {
				t.Errorf("Diff()[%q] = %+v, want {%v %v}", f.name, c, f.old, f.new)
			}
		})
	}
}

func TestUserDiff_NoChanges(t *testing.T) {
	a := baseUser()
	b := *a
	if d := b.Diff(a); len(d) != 0 {
		t.Errorf("Diff() = %v, want empty", d)
	}
}

func TestUserDiff_PasswordHashIgnored(t *testing.T) {
	a := baseUser()
	b := *a
	b.PasswordHash = strPtr("$argon2id$...")
	if d := b.Diff(a); len(d) != 0 {
		t.Errorf("Diff() = %v, want empty", d)
	}
}

// ---------------------------------------------------------------------------
// Service.Diff / Key.Diff
// ---------------------------------------------------------------------------

func TestServiceDiff_PointerFields(t *testing.T) {
	a := &Service{ID: uuid.New(), Name: "svc", URL: "http://a"}
	b := *a
	b.ProviderGithubOauth2URL = strPtr("http://a/github")

	d := b.Diff(a)
	if len(d) != 1 {
		t.Fatalf("Diff() len = %d, want 1: %v", len(d), d)
	}
	c := d["provider_github_oauth2_url"]
	if c.Old != nil || c.New != "http://a/github" {
		t.Errorf("Diff() change = %+v", c)
	}
}

func TestServiceDiff_EqualPointersAreUnchanged(t *testing.T) {
	a := &Service{ID: uuid.New(), ProviderLocalURL: strPtr("http://x")}
	b := *a
	b.ProviderLocalURL = strPtr("http://x")
	if d := b.Diff(a); len(d) != 0 {
		t.Errorf("Diff() = %v, want empty", d)
	}
}

func TestKeyDiff(t *testing.T) {
	a := &Key{ID: uuid.New(), IsEnabled: true, Name: "k"}
	b := *a
	b.IsEnabled = false
	b.IsRevoked = true

	d := b.Diff(a)
	if len(d) != 2 {
		t.Fatalf("Diff() len = %d, want 2: %v", len(d), d)
	}
	if d["is_revoked"].New != true {
		t.Errorf("is_revoked change = %+v", d["is_revoked"])
	}
}

// ---------------------------------------------------------------------------
// Key helpers
// ---------------------------------------------------------------------------

func TestKeyIsRoot(t *testing.T) {
	svc := uuid.New()
	usr := uuid.New()

	tests := []struct {
		name string
		key  Key
		want bool
	}{
		{"root", Key{}, true},
		{"service", Key{ServiceID: &svc}, false},
		{"user", Key{ServiceID: &svc, UserID: &usr}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.IsRoot(); got != tt.want {
				t.Errorf("IsRoot() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseKeyType(t *testing.T) {
	for _, s := range []string{"key", "token", "totp"} {
		if _, err := ParseKeyType(s); err != nil {
			t.Errorf("ParseKeyType(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseKeyType("password"); err == nil {
		t.Error("ParseKeyType(password) expected error")
	}
}

// ---------------------------------------------------------------------------
// JSON column type
// ---------------------------------------------------------------------------

func TestJSON_ValueDefaultsToEmptyObject(t *testing.T) {
	v, err := JSON(nil).Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if v != "{}" {
		t.Errorf("Value() = %v, want {}", v)
	}
}

func TestJSON_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  interface{}
		want string
	}{
		{"bytes", []byte(`{"a":1}`), `{"a":1}`},
		{"string", `{"b":2}`, `{"b":2}`},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSON
			if err := j.Scan(tt.src); err != nil {
				t.Fatalf("Scan() error: %v", err)
			}
			if string(j) != tt.want {
				t.Errorf("Scan() = %q, want %q", string(j), tt.want)
			}
		})
	}

	var j JSON
	if err := j.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
}

func TestNewUserCreateDefaults(t *testing.T) {
	c := NewUserCreate(true, "Alice", "alice@example.com")
	if c.Locale != "en" || c.Timezone != "Etc/UTC" {
		t.Errorf("NewUserCreate() locale/timezone = %q/%q", c.Locale, c.Timezone)
	}
	if c.PasswordHash != nil {
		t.Error("NewUserCreate() should not set a password hash")
	}
}
