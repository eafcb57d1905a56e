package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "photo_rate_limited_requests_total",
	Help: "Requests rejected by the rate limiter",
})

// RateLimitStore counts hits per key inside fixed windows.
type RateLimitStore interface {
	// Incr bumps the counter of key and returns the new count together
	// with the time left until the current window resets.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// MemoryRateStore keeps windows in process. Counters are not shared between
// replicas.
type MemoryRateStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, int64]
}

func NewMemoryRateStore() *MemoryRateStore {
	c := ttlcache.New(ttlcache.WithDisableTouchOnHit[string, int64]())
	go c.Start()

	return &MemoryRateStore{cache: c}
}

func (m *MemoryRateStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(key)
	if item != nil && !item.IsExpired() {
		// Keep the window's original expiry
		if left := time.Until(item.ExpiresAt()); left > 0 {
			n := item.Value() + 1
			m.cache.Set(key, n, left)
			return n, left, nil
		}
	}

	m.cache.Set(key, 1, window)
	return 1, window, nil
}

func (m *MemoryRateStore) Close() {
	m.cache.Stop()
}

// RedisRateStore shares windows between every replica that points at the
// same redis.
type RedisRateStore struct {
	c *redis.Client
}

func NewRedisRateStore(ctx context.Context, url string) (*RedisRateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url, %w", err)
	}

	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to reach redis, %w", err)
	}

	return &RedisRateStore{c: c}, nil
}

func NewRedisRateStoreFromClient(c *redis.Client) *RedisRateStore {
	return &RedisRateStore{c: c}
}

func (r *RedisRateStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := r.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	left := pttl.Val()
	if left <= 0 {
		// First hit of the window, or a key that lost its expiry
		if err := r.c.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		left = window
	}

	return incr.Val(), left, nil
}

func (r *RedisRateStore) Close() error {
	return r.c.Close()
}

type RateLimiterConfig struct {
	Window      time.Duration
	MaxRequests int
	Store       RateLimitStore
}

// RateLimiterMiddleware applies a fixed window limit per client IP. When the
// store can't be reached the request goes through.
func RateLimiterMiddleware(config RateLimiterConfig) gin.HandlerFunc {
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}

	if config.Store == nil {
		config.Store = NewMemoryRateStore()
	}

	limit := strconv.Itoa(config.MaxRequests)

	return func(c *gin.Context) {
		count, left, err := config.Store.Incr(c.Request.Context(), "ratelimit:"+c.ClientIP(), config.Window)
		if err != nil {
			zap.L().Warn("Rate limiter store unavailable", zap.Error(err))
			c.Next()
			return
		}

		resetIn := strconv.Itoa(int(math.Ceil(left.Seconds())))

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(config.MaxRequests)-count), 10))
		c.Header("X-RateLimit-Reset", resetIn)

		if count > int64(config.MaxRequests) {
			rateLimitedTotal.Inc()

			c.Header("Retry-After", resetIn)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "Too many requests",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Next()
	}
}
