package auth

import (
	"testing"

	"github.com/sso-registry/sso/internal/db/models"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantNil  bool
		wantKind models.HeaderAuthKind
		want     string
	}{
		{"empty", "", true, 0, ""},
		{"whitespace", "   ", true, 0, ""},
		{"bare key", "abc123", false, models.HeaderAuthKey, "abc123"},
		{"key scheme", "key abc123", false, models.HeaderAuthKey, "abc123"},
		{"token scheme", "token eyJhbGciOi", false, models.HeaderAuthToken, "eyJhbGciOi"},
		{"bearer is a key", "Bearer abc123", false, models.HeaderAuthKey, "abc123"},
		{"unknown scheme is a key", "Basic xyz", false, models.HeaderAuthKey, "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHeader(tt.header)
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseHeader(%q) = %+v, want nil", tt.header, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseHeader(%q) = nil", tt.header)
			}
			if got.Kind != tt.wantKind || got.Value != tt.want {
				t.Errorf("ParseHeader(%q) = %+v, want kind %d value %q", tt.header, got, tt.wantKind, tt.want)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"abc123", "abc123", true},
		{"key abc123", "abc123", true},
		{"Bearer abc123", "abc123", true},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKey(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseKey(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
