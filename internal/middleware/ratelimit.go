package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/logger"
	"github.com/charlesng35/teamchat/pkg/response"
)

// RateLimitConfig tunes RateLimit.
type RateLimitConfig struct {
	// Store holds the counters. A nil Store means process-local counting.
	Store       RateStore
	MaxRequests int
	Window      time.Duration
	// KeyFunc identifies the caller. Defaults to client IP plus route.
	KeyFunc func(*gin.Context) string
}

// RateLimit limits requests per key within a fixed window. When the shared store
// errors the request is counted in a process-local store instead, so a Redis
// outage degrades limits to per-instance rather than disabling them.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	fallback := NewMemoryRateStore()
	store := cfg.Store
	if store == nil {
		store = fallback
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return c.ClientIP() + "|" + c.FullPath()
		}
	}
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		key := keyFunc(c)
		ctx := c.Request.Context()

		count, ttl, err := store.Increment(ctx, key, cfg.Window)
		if err != nil {
			log.Warn("shared rate store unavailable, counting locally", zap.Error(err))
			count, ttl, _ = fallback.Increment(ctx, key, cfg.Window)
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		resetIn := int(math.Ceil(ttl.Seconds()))
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetIn))

		if count > cfg.MaxRequests {
			c.Header("Retry-After", strconv.Itoa(resetIn))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
