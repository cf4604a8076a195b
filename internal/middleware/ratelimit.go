package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/typing-contest/internal/config"
	"github.com/iliyamo/typing-contest/internal/logger"
)

// takeScript refills the bucket for the elapsed whole intervals and takes
// one token. It returns {allowed, remaining, retry_after_ms}.
var takeScript = redis.NewScript(`
local now, cap, refill, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_ms'))
if tokens == nil or last == nil then
  tokens, last = cap, now
end
local steps = math.floor(math.max(0, now - last) / every)
if steps > 0 then
  tokens = math.min(cap, tokens + steps * refill)
  last = last + steps * every
end
local allowed, wait = 0, 0
if tokens > 0 then
  allowed, tokens = 1, tokens - 1
else
  wait = math.max(0, every - (now - last))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_ms', last)
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tokens, wait}
`)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// TokenBucket is a rate limiter whose buckets live in Redis, so every
// instance shares them. A nil *TokenBucket allows everything.
type TokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log logger.Logger
	now func() time.Time
}

// NewBucket returns nil when limiting is disabled or Redis is unavailable.
func NewBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logger.Logger) *TokenBucket {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TokenBucket{cfg: cfg, rdb: rdb, log: log, now: time.Now}
}

// Take spends one token from the bucket named key.
func (b *TokenBucket) Take(ctx context.Context, key string) (Decision, error) {
	if b == nil {
		return Decision{Allowed: true}, nil
	}
	res, err := takeScript.Run(ctx, b.rdb, []string{b.cfg.Prefix + ":" + key},
		b.now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Allow is Take that lets the caller through when Redis fails.
func (b *TokenBucket) Allow(ctx context.Context, key string) Decision {
	d, err := b.Take(ctx, key)
	if err != nil {
		b.log.Warn("ratelimit: redis error", "key", key, "error", err)
		return Decision{Allowed: true, Remaining: -1}
	}
	return d
}

// Middleware limits requests per key built from the configured strategy.
func (b *TokenBucket) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if b == nil {
			return next
		}
		return func(c echo.Context) error {
			d := b.Allow(c.Request().Context(), requestKey(b.cfg.KeyStrategy, c))
			h := c.Response().Header()
			if d.Remaining >= 0 {
				h.Set("X-RateLimit-Limit", strconv.Itoa(b.cfg.Capacity))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			}
			if d.Allowed {
				return next(c)
			}
			secs := RetrySeconds(d.RetryAfter)
			h.Set("Retry-After", strconv.Itoa(secs))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// NewTokenBucket is NewBucket(cfg, rdb, log).Middleware().
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logger.Logger) echo.MiddlewareFunc {
	return NewBucket(cfg, rdb, log).Middleware()
}

// RetrySeconds rounds a wait up to whole seconds.
func RetrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func requestKey(strategy string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := currentUserID(c)
	route := c.Request().Method + " " + c.Path()

	var parts []string
	switch strategy {
	case config.KeyByIP:
		parts = []string{"ip", ip}
	case config.KeyByUser:
		parts = []string{"user", uid}
	case config.KeyByIPUser:
		parts = []string{"ip", ip, "user", uid}
	default:
		parts = []string{"ip", ip, "route", route}
	}
	return strings.Join(parts, ":")
}

// currentUserID is the id JWTAuth stored, or "anon" on public routes such
// as login and register.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
