package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/sentinel/internal/apperror"
)

// Decision is the outcome of a single rate limit check.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

// InMemoryLimiter is a fixed-window counter held in process memory. It is
// used when Redis is not configured and as the fallback when Redis fails.
type InMemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	items  map[string]rateLimitEntry
}

// rateLimitEntry tracks request counts for a single key within a window.
type rateLimitEntry struct {
	count   int
	resetAt time.Time
}

// NewInMemoryLimiter creates an in-process limiter. A non-positive window
// defaults to one minute.
func NewInMemoryLimiter(window time.Duration) *InMemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &InMemoryLimiter{
		window: window,
		items:  make(map[string]rateLimitEntry),
	}
}

// Allow records a hit for key and reports whether it is within limit.
func (l *InMemoryLimiter) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Expired entries are swept on every call instead of by a goroutine.
	for k, v := range l.items {
		if now.After(v.resetAt) {
			delete(l.items, k)
		}
	}

	curr, ok := l.items[key]
	if !ok {
		curr = rateLimitEntry{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.items[key] = curr

	return decide(curr.count, limit, curr.resetAt)
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares counters across instances through Redis. Any Redis
// failure degrades to Fallback so an outage never locks users out.
type RedisLimiter struct {
	Client   *redis.Client
	Window   time.Duration
	Prefix   string
	Fallback *InMemoryLimiter
}

// NewRedisLimiter creates a Redis-backed limiter with an in-memory fallback.
func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		Client:   client,
		Window:   window,
		Prefix:   "sentinel:rl:",
		Fallback: NewInMemoryLimiter(window),
	}
}

// Allow increments the shared counter for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.Client == nil {
		return l.fallback(ctx, key, limit)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	res, err := rateLimitScript.Run(ctx, l.Client, []string{l.Prefix + key}, l.Window.Milliseconds()).Result()
	if err != nil {
		slog.Warn("redis rate limiter unavailable, using fallback", slog.Any("error", err))
		return l.fallback(ctx, key, limit)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.fallback(ctx, key, limit)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = l.Window.Milliseconds()
	}

	return decide(int(count), limit, time.Now().UTC().Add(time.Duration(ttlMs)*time.Millisecond))
}

func (l *RedisLimiter) fallback(ctx context.Context, key string, limit int) Decision {
	if l.Fallback != nil {
		return l.Fallback.Allow(ctx, key, limit)
	}
	return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().UTC().Add(l.Window)}
}

func decide(count, limit int, resetAt time.Time) Decision {
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
}

// NewLimiter returns a Redis-backed limiter when a client is available and an
// in-process one otherwise.
func NewLimiter(client *redis.Client, window time.Duration) Limiter {
	if client == nil {
		return NewInMemoryLimiter(window)
	}
	return NewRedisLimiter(client, window)
}

// RateLimit returns middleware that limits requests per client IP. Requests
// over the limit are rejected with 429 and a Retry-After header.
func RateLimit(limiter Limiter, scope string, limit int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := limiter.Allow(c.Request().Context(), scope+":"+c.RealIP(), limit)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				retry := int(time.Until(d.ResetAt).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				return apperror.NewTooManyRequests()
			}
			return next(c)
		}
	}
}
