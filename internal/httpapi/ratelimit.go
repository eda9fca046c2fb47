package httpapi

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitTTL = 10 * time.Minute

// tokenBucketScript refills at one token per interval and spends one token per request.
// It returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

if interval_ms > 0 then
  local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
  if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals)
    last_refill = last_refill + (intervals * interval_ms)
  end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

type bucketDecision struct {
	allowed      bool
	remaining    int64
	retryAfterMs int64
}

type bucketEvaluator func(ctx context.Context, key string, nowMs int64, capacity int, intervalMs int64) (bucketDecision, error)

// RateLimiter throttles each caller with a redis-backed token bucket.
// A nil *RateLimiter lets every request through.
type RateLimiter struct {
	perMinute int
	prefix    string
	logger    *zap.Logger
	evaluate  bucketEvaluator
	nowFn     func() time.Time
}

// NewRateLimiter returns nil when client is nil or perMinute is not positive.
func NewRateLimiter(client redis.Scripter, perMinute int, prefix string, logger *zap.Logger) *RateLimiter {
	if client == nil || perMinute <= 0 {
		return nil
	}
	evaluate := func(ctx context.Context, key string, nowMs int64, capacity int, intervalMs int64) (bucketDecision, error) {
		values, err := tokenBucketScript.Run(ctx, client, []string{key}, nowMs, capacity, intervalMs, int64(rateLimitTTL/time.Second)).Int64Slice()
		if err != nil {
			return bucketDecision{}, err
		}
		if len(values) != 3 {
			return bucketDecision{}, fmt.Errorf("unexpected token bucket result %v", values)
		}
		return bucketDecision{allowed: values[0] == 1, remaining: values[1], retryAfterMs: values[2]}, nil
	}
	return newRateLimiter(evaluate, perMinute, prefix, logger)
}

func newRateLimiter(evaluate bucketEvaluator, perMinute int, prefix string, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		perMinute: perMinute,
		prefix:    defaultIfEmpty(prefix, defaultRateLimitPrefix),
		logger:    logger,
		evaluate:  evaluate,
		nowFn:     time.Now,
	}
}

// Middleware enforces the limit. It must run after authentication so buckets are per caller.
// Redis failures fail open.
func (limiter *RateLimiter) Middleware() gin.HandlerFunc {
	if limiter == nil {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	intervalMs := time.Minute.Milliseconds() / int64(limiter.perMinute)
	return func(ctx *gin.Context) {
		key := limiter.key(ctx)
		decision, err := limiter.evaluate(ctx.Request.Context(), key, limiter.nowFn().UnixMilli(), limiter.perMinute, intervalMs)
		if err != nil {
			limiter.logger.Warn("rate limit unavailable", zap.String("key", key), zap.Error(err))
			ctx.Next()
			return
		}
		ctx.Header("X-RateLimit-Limit", strconv.Itoa(limiter.perMinute))
		ctx.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.remaining, 10))
		if !decision.allowed {
			retryAfter := int(math.Ceil(float64(decision.retryAfterMs) / 1000.0))
			ctx.Header("Retry-After", strconv.Itoa(retryAfter))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse("too_many_requests", "rate limit exceeded"))
			return
		}
		ctx.Next()
	}
}

func (limiter *RateLimiter) key(ctx *gin.Context) string {
	if caller, ok := getCaller(ctx); ok {
		return limiter.prefix + ":user:" + caller.UserID().String()
	}
	return limiter.prefix + ":ip:" + ctx.ClientIP()
}
