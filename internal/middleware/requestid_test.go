package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// newRequestIDRouter echoes the context request id in X-Context-Request-ID.
func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Context-Request-ID", c.GetString(RequestIDKey))
		c.Status(http.StatusOK)
	})
	return r
}

func serveWithRequestID(r *gin.Engine, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// RequestIDMiddleware
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware_Inbound(t *testing.T) {
	tests := []struct {
		name      string
		inbound   string
		propagate bool
	}{
		{"absent", "", false},
		{"upstream id", "upstream-provided-request-id-001", true},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
		{"contains space", "two words", false},
		{"contains newline", "id\nforged-log-line", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithRequestID(newRequestIDRouter(), tt.inbound)

			id := w.Header().Get(RequestIDHeader)
			if ctxID := w.Header().Get("X-Context-Request-ID"); ctxID != id {
				t.Errorf("context id %q != response id %q", ctxID, id)
			}
			if tt.propagate {
				if id != tt.inbound {
					t.Errorf("id = %q, want inbound %q", id, tt.inbound)
				}
				return
			}
			if _, err := uuid.Parse(id); err != nil {
				t.Errorf("id = %q, want generated uuid", id)
			}
		})
	}
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()
	a := serveWithRequestID(r, "").Header().Get(RequestIDHeader)
	b := serveWithRequestID(r, "").Header().Get(RequestIDHeader)
	if a == b {
		t.Errorf("two requests got the same id %q", a)
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusBadRequest, "level=WARN"},
		{http.StatusServiceUnavailable, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
			defer slog.SetDefault(prev)

			r := gin.New()
			r.Use(RequestIDMiddleware(), LoggerMiddleware())
			r.GET("/v1/ping", func(c *gin.Context) { c.Status(tt.status) })
			serveReq := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
			serveReq.Header.Set(RequestIDHeader, "req-1")
			r.ServeHTTP(httptest.NewRecorder(), serveReq)

			out := buf.String()
			for _, want := range []string{tt.level, "request_id=req-1", "path=/v1/ping", "method=GET"} {
				if !strings.Contains(out, want) {
					t.Errorf("log line %q missing %q", out, want)
				}
			}
		})
	}
}
