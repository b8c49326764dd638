package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sso-registry/sso/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newClockLimiter returns a memory limiter driven by a manual clock.
func newClockLimiter(t *testing.T, rpm, burst int) (*MemoryLimiter, *time.Time) {
	t.Helper()
	l := NewMemoryLimiter(rpm, burst, time.Hour)
	t.Cleanup(func() { l.Close() })
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

type stubLimiter struct {
	res  LimitResult
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func (s *stubLimiter) Limit() int   { return 42 }
func (s *stubLimiter) Close() error { return nil }

func newRateLimitRouter(l Limiter) *gin.Engine {
	r := gin.New()
	r.Use(CallerMiddleware(), RateLimitMiddleware(l))
	r.GET("/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serveRateLimited(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// NewLimiter
// ---------------------------------------------------------------------------

func TestNewLimiter_MemoryDefaults(t *testing.T) {
	l, err := NewLimiter(config.RateLimitingConfig{})
	require.NoError(t, err)
	defer l.Close()

	mem, ok := l.(*MemoryLimiter)
	require.True(t, ok, "want *MemoryLimiter, got %T", l)
	assert.Equal(t, 60, mem.Limit())
	assert.Equal(t, 60, mem.burst)
}

func TestNewLimiter_Redis(t *testing.T) {
	l, err := NewLimiter(config.RateLimitingConfig{RequestsPerMinute: 30, Burst: 5, RedisURL: "redis://127.0.0.1:6379/2"})
	require.NoError(t, err)
	defer l.Close()

	rl, ok := l.(*RedisLimiter)
	require.True(t, ok, "want *RedisLimiter, got %T", l)
	assert.Equal(t, 30, rl.Limit())
	assert.Equal(t, 5, rl.limit.Burst)
	assert.Equal(t, time.Minute, rl.limit.Period)
	assert.Equal(t, 2, rl.client.Options().DB)
}

func TestNewLimiter_BadRedisURL(t *testing.T) {
	_, err := NewLimiter(config.RateLimitingConfig{RedisURL: "ftp://cache.internal"})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// MemoryLimiter
// ---------------------------------------------------------------------------

func TestMemoryLimiter_Burst(t *testing.T) {
	l, _ := newClockLimiter(t, 60, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}
	res, _ := l.Allow(ctx, "a")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	res, _ = l.Allow(ctx, "b")
	assert.True(t, res.Allowed, "keys are independent")
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l, now := newClockLimiter(t, 60, 1)
	ctx := context.Background()

	res, _ := l.Allow(ctx, "a")
	require.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "a")
	require.False(t, res.Allowed)

	*now = now.Add(1500 * time.Millisecond)
	res, _ = l.Allow(ctx, "a")
	assert.True(t, res.Allowed)

	*now = now.Add(time.Hour)
	res, _ = l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining, "refill is capped at burst")
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, now := newClockLimiter(t, 60, 5)
	l.Allow(context.Background(), "stale")
	*now = now.Add(11 * time.Minute)
	l.Allow(context.Background(), "fresh")

	l.sweep(10 * time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "stale")
	assert.Contains(t, l.buckets, "fresh")
}

func TestMemoryLimiter_CloseTwice(t *testing.T) {
	l := NewMemoryLimiter(60, 5, time.Hour)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

func TestRateLimitMiddleware_Allowed(t *testing.T) {
	stub := &stubLimiter{res: LimitResult{Allowed: true, Remaining: 7}}
	w := serveRateLimited(newRateLimitRouter(stub), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "7", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"ip:203.0.113.9"}, stub.keys)
}

func TestRateLimitMiddleware_Blocked(t *testing.T) {
	stub := &stubLimiter{res: LimitResult{RetryAfter: 1500 * time.Millisecond}}
	w := serveRateLimited(newRateLimitRouter(stub), "key secret-value")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limited","retry_after":2}`, w.Body.String())

	require.Len(t, stub.keys, 1)
	assert.Regexp(t, `^key:[0-9a-f]{32}$`, stub.keys[0])
	assert.NotContains(t, stub.keys[0], "secret-value")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	stub := &stubLimiter{err: errors.New("dial tcp: connection refused")}
	w := serveRateLimited(newRateLimitRouter(stub), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitMiddleware_SameKeySameBucket(t *testing.T) {
	l := NewMemoryLimiter(60, 1, time.Hour)
	defer l.Close()
	r := newRateLimitRouter(l)

	assert.Equal(t, http.StatusOK, serveRateLimited(r, "key one").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveRateLimited(r, "Bearer one").Code)
	assert.Equal(t, http.StatusOK, serveRateLimited(r, "key two").Code)
}
