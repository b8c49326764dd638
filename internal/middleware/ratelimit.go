package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/pkg/checksum"
)

// LimitResult is the outcome of one rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
	// Limit is the configured number of requests per minute.
	Limit() int
	Close() error
}

// NewLimiter returns a redis backed limiter when cfg.RedisURL is set, shared
// by every replica, and an in-memory token bucket otherwise.
func NewLimiter(cfg config.RateLimitingConfig) (Limiter, error) {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rpm
	}

	if cfg.RedisURL == "" {
		return NewMemoryLimiter(rpm, burst, 5*time.Minute), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit redis url: %w", err)
	}
	return NewRedisLimiter(redis.NewClient(opts), rpm, burst), nil
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisLimiter implements GCRA through redis_rate.
type RedisLimiter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter limits each key to rpm requests per minute with the given
// burst. The limiter owns client and closes it on Close.
func NewRedisLimiter(client *redis.Client, rpm, burst int) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.Limit{Rate: rpm, Burst: burst, Period: time.Minute},
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	res, err := l.limiter.Allow(ctx, "sso:ratelimit:"+key, l.limit)
	if err != nil {
		return LimitResult{}, err
	}
	return LimitResult{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

func (l *RedisLimiter) Limit() int { return l.limit.Rate }

func (l *RedisLimiter) Close() error { return l.client.Close() }

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is a per-process token bucket. Buckets idle for ten minutes
// are dropped by a cleanup goroutine that runs until Close.
type MemoryLimiter struct {
	rpm     int
	burst   int
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryLimiter starts a limiter allowing rpm requests per minute per key
// with bursts up to burst.
func NewMemoryLimiter(rpm, burst int, cleanupInterval time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		rpm:     rpm,
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go l.cleanup(cleanupInterval)
	return l
}

func (l *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(10 * time.Minute)
		case <-l.stopCh:
			return
		}
	}
}

func (l *MemoryLimiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > idle {
			delete(l.buckets, key)
		}
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	perSecond := float64(l.rpm) / 60.0

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastUpdate: now}
		l.buckets[key] = b
	} else {
		b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return LimitResult{Allowed: true, Remaining: int(b.tokens)}, nil
	}
	wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	return LimitResult{Allowed: false, Remaining: 0, RetryAfter: wait}, nil
}

func (l *MemoryLimiter) Limit() int { return l.rpm }

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *MemoryLimiter) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	return nil
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware rejects requests over the limit with 429. Requests are
// counted per service key when one is presented and per client IP otherwise.
// A limiter error lets the request through: an unreachable redis must not take
// authentication down with it.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	limit := strconv.Itoa(limiter.Limit())
	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), rateLimitKey(c))
		if err != nil {
			slog.Warn("rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}

// rateLimitKey prefers the caller's key, hashed so key values never reach the
// limiter store, and falls back to the client IP.
func rateLimitKey(c *gin.Context) string {
	if caller := CallerFrom(c); caller.Key != "" {
		return "key:" + checksum.SHA256Hex(caller.Key)[:32]
	}
	return "ip:" + c.ClientIP()
}
