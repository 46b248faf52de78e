package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/spec-kit/photobooth-auth/pkg/util"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter throttles requests with a fixed window counter in Redis.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisLimiter builds a limiter over the given client. A nil client
// disables limiting entirely.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
	}
}

// Allow reports whether the key has budget left in the current window. Fails
// open: when Redis is unreachable the request goes through.
func (l *RedisLimiter) Allow(key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{key}, ttl, limit).Int64()
	if err != nil {
		return true
	}
	return allowed == 1
}

// Limit returns a per-route throttling middleware keyed by caller IP.
func (l *RedisLimiter) Limit(name string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ratelimit:" + name + ":" + c.IP()
		if !l.Allow(key, limit, window) {
			return apperrors.NewDomainError("RATE_LIMITED", "Too many requests", http.StatusTooManyRequests, nil)
		}
		return c.Next()
	}
}
