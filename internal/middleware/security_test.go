package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// applySecurityHeaders runs a GET / through SecurityHeadersMiddleware and
// returns the recorder.
func applySecurityHeaders(cfg SecurityHeadersConfig) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestSecurityHeadersMiddleware_API(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig())

	want := map[string]string{
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
		"X-Frame-Options":              "DENY",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":              "no-referrer",
		"Cache-Control":                "no-store",
		"Pragma":                       "no-cache",
		"X-Content-Type-Options":       "nosniff",
		"Cross-Origin-Resource-Policy": "same-origin",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeadersMiddleware_Optional(t *testing.T) {
	tests := []struct {
		name   string
		cfg    SecurityHeadersConfig
		header string
		want   string
	}{
		{"hsts off", SecurityHeadersConfig{}, "Strict-Transport-Security", ""},
		{"hsts without subdomains", SecurityHeadersConfig{HSTSMaxAge: 60}, "Strict-Transport-Security", "max-age=60"},
		{"frame options off", SecurityHeadersConfig{}, "X-Frame-Options", ""},
		{"frame options sameorigin", SecurityHeadersConfig{FrameOptions: "SAMEORIGIN"}, "X-Frame-Options", "SAMEORIGIN"},
		{"cache allowed", SecurityHeadersConfig{}, "Cache-Control", ""},
		{"nosniff always", SecurityHeadersConfig{}, "X-Content-Type-Options", "nosniff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := applySecurityHeaders(tt.cfg)
			if got := w.Header().Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
