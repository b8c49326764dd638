package auth

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sso-registry/sso/internal/config"
)

// SHA-1("password") = 5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8
const passwordRangeBody = "003D68EB55068C33ACE09247EE4C639306B:3\r\n" +
	"1E4C9B93F3F0682250B6CF8331B7EE68FD8:9545824\r\n"

func rangeServer(t *testing.T, status int) (*httptest.Server, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(status)
		w.Write([]byte(passwordRangeBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &path
}

func TestPasswordMetaChecker_NilAndEmpty(t *testing.T) {
	c := NewPasswordMetaChecker(&config.PwnedPasswordsConfig{})

	meta := c.Check(context.Background(), nil)
	if meta.PasswordStrength != nil || meta.PasswordPwned != nil {
		t.Errorf("Check(nil) = %+v, want empty", meta)
	}

	empty := ""
	meta = c.Check(context.Background(), &empty)
	if meta.PasswordStrength == nil || *meta.PasswordStrength != 0 {
		t.Errorf("Check(\"\") strength = %v, want 0", meta.PasswordStrength)
	}
	if meta.PasswordPwned == nil || !*meta.PasswordPwned {
		t.Errorf("Check(\"\") pwned = %v, want true", meta.PasswordPwned)
	}
}

func TestPasswordMetaChecker_Pwned(t *testing.T) {
	srv, path := rangeServer(t, http.StatusOK)
	c := NewPasswordMetaChecker(&config.PwnedPasswordsConfig{Enabled: true, URL: srv.URL + "/"})

	password := "password"
	meta := c.Check(context.Background(), &password)
	if *path != "/range/5BAA6" {
		t.Errorf("range request path = %q, want /range/5BAA6", *path)
	}
	if meta.PasswordPwned == nil || !*meta.PasswordPwned {
		t.Errorf("pwned = %v, want true", meta.PasswordPwned)
	}
	if meta.PasswordStrength == nil || *meta.PasswordStrength > 1 {
		t.Errorf("strength = %v, want 0 or 1 for a dictionary word", meta.PasswordStrength)
	}
}

func TestPasswordMetaChecker_NotPwned(t *testing.T) {
	srv, _ := rangeServer(t, http.StatusOK)
	c := NewPasswordMetaChecker(&config.PwnedPasswordsConfig{Enabled: true, URL: srv.URL})

	password := "vK9#q2!zLw8$Ue4^Tn"
	meta := c.Check(context.Background(), &password)
	if meta.PasswordPwned == nil || *meta.PasswordPwned {
		t.Errorf("pwned = %v, want false", meta.PasswordPwned)
	}
	if meta.PasswordStrength == nil || *meta.PasswordStrength < 3 {
		t.Errorf("strength = %v, want at least 3", meta.PasswordStrength)
	}
}

func TestPasswordMetaChecker_FailuresLeavePwnedNil(t *testing.T) {
	srv, _ := rangeServer(t, http.StatusServiceUnavailable)
	password := "password"

	tests := []struct {
		name string
		cfg  config.PwnedPasswordsConfig
	}{
		{"disabled", config.PwnedPasswordsConfig{Enabled: false, URL: srv.URL}},
		{"error status", config.PwnedPasswordsConfig{Enabled: true, URL: srv.URL}},
		{"unreachable", config.PwnedPasswordsConfig{Enabled: true, URL: "http://127.0.0.1:1", TimeoutSecs: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := NewPasswordMetaChecker(&tt.cfg).Check(context.Background(), &password)
			if meta.PasswordPwned != nil {
				t.Errorf("pwned = %v, want nil", *meta.PasswordPwned)
			}
			if meta.PasswordStrength == nil {
				t.Error("strength is nil, want a score")
			}
		})
	}
}

func TestPasswordMetaChecker_LogsOnlyFailures(t *testing.T) {
	srv, path := rangeServer(t, http.StatusServiceUnavailable)
	password := "password"

	tests := []struct {
		name    string
		cfg     config.PwnedPasswordsConfig
		wantLog bool
	}{
		{"disabled", config.PwnedPasswordsConfig{Enabled: false, URL: srv.URL}, false},
		{"error status", config.PwnedPasswordsConfig{Enabled: true, URL: srv.URL}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
			defer slog.SetDefault(prev)
			*path = ""

			NewPasswordMetaChecker(&tt.cfg).Check(context.Background(), &password)

			logged := strings.Contains(buf.String(), "password breach check failed")
			if logged != tt.wantLog {
				t.Errorf("logged = %v, want %v (log: %q)", logged, tt.wantLog, buf.String())
			}
			if !tt.cfg.Enabled && *path != "" {
				t.Errorf("disabled checker queried %q", *path)
			}
		})
	}
}

func TestPasswordRangeBody_IsWellFormed(t *testing.T) {
	for _, line := range strings.Split(strings.TrimSpace(passwordRangeBody), "\r\n") {
		if len(line) < 35 {
			t.Errorf("line %q shorter than a hash suffix", line)
		}
	}
}
