package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/response"
)

var errRateLimited = apperror.New(http.StatusTooManyRequests, apperror.KindRateLimited, "rate limit exceeded")

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// LocalLimiter keeps one token bucket per key in process memory. A bucket
// left idle long enough to refill completely is dropped, since a fresh one
// behaves the same.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	idle := time.Hour
	if rps > 0 {
		idle = max(time.Duration(float64(burst)/rps*float64(time.Second)), time.Second)
	}
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	limiter := b.limiter
	l.mu.Unlock()

	r := limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

// tokenBucketScript refills continuously at rate tokens per second up to
// capacity and takes one token. Returns {allowed, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local rate = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1])
	local ts = tonumber(state[2])
	if tokens == nil or ts == nil then
		tokens = capacity
		ts = now_ms
	end

	local elapsed = math.max(0, now_ms - ts)
	tokens = math.min(capacity, tokens + (elapsed * rate / 1000))

	local allowed = 0
	local retry_ms = 0
	if tokens >= 1 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_ms = math.ceil((1 - tokens) * 1000 / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now_ms)
	redis.call('EXPIRE', key, ttl_seconds)
	return { allowed, retry_ms }
`)

// RedisLimiter shares token buckets across every instance of the service.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	rps    float64
	burst  int
	ttl    time.Duration
}

func NewRedisLimiter(rdb *redis.Client, rps float64, burst int) *RedisLimiter {
	ttl := time.Duration(math.Ceil(float64(burst)/rps)) * time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &RedisLimiter{rdb: rdb, prefix: "rl", rps: rps, burst: burst, ttl: ttl}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key},
		time.Now().UnixMilli(), l.burst, l.rps, int64(l.ttl/time.Second),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit result %v", vals)
	}
	return vals[0] == 1, time.Duration(vals[1]) * time.Millisecond, nil
}

// RateLimit rejects clients that exceed their bucket. When the limiter
// itself fails the request is let through.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.FullPath()))
			c.Header("Retry-After", strconv.Itoa(secs))
			response.Error(c, errRateLimited.WithDetails(map[string]any{"retry_after": secs}))
			c.Abort()
			return
		}
		c.Next()
	}
}
