package middleware

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter is a distributed token bucket shared by every API replica.
// State lives in one Redis hash per client, mutated atomically by a Lua
// script.
type RedisLimiter struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewRedisLimiter constructs a bucket with the provided capacity and refill
// rate.
func NewRedisLimiter(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration, logger zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
		logger:   logger,
	}
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)

// Allow consumes one token for the given key if available.
func (l *RedisLimiter) Allow(r *http.Request, key string) bool {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(r.Context(), l.client, []string{"ratelimit:" + key}, l.capacity, l.refill, now, l.ttl.Milliseconds()).Result()
	if err != nil {
		// Redis being down must not take the API with it.
		l.logger.Warn().Err(err).Msg("middleware: rate limiter unavailable, allowing request")
		return true
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 1 {
		return true
	}
	allowed, _ := arr[0].(int64)
	return allowed == 1
}

// Middleware applies the limiter per client IP.
func (l *RedisLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r, clientIPForRateLimit(r)) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
