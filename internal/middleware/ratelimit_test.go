package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/teamchat/internal/cache"
	"github.com/charlesng35/teamchat/pkg/logger"
)

func newLimitedRouter(cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func ping(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newLimitedRouter(RateLimitConfig{MaxRequests: 2, Window: 100 * time.Millisecond})

	// First two requests should pass
	for i := 0; i < 2; i++ {
		w := ping(r)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Third request within window should be rate-limited
	w := ping(r)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	time.Sleep(120 * time.Millisecond)

	// After window resets, should pass again
	require.Equal(t, http.StatusOK, ping(r).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newLimitedRouter(RateLimitConfig{})
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, ping(r).Code)
	}
}

func TestRateLimitWithRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := cache.NewRedisStore(cache.RedisConfig{Address: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := RateLimitConfig{Store: NewRedisRateStore(store), MaxRequests: 1, Window: time.Minute}

	// Two routers stand in for two instances sharing one Redis.
	first := newLimitedRouter(cfg)
	second := newLimitedRouter(cfg)

	require.Equal(t, http.StatusOK, ping(first).Code)
	require.Equal(t, http.StatusTooManyRequests, ping(second).Code)

	srv.FastForward(time.Minute + time.Second)
	require.Equal(t, http.StatusOK, ping(second).Code)
}

type failingRateStore struct{}

func (failingRateStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestRateLimitFallsBackToMemory(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	t.Cleanup(logger.Replace(zap.New(core)))

	r := newLimitedRouter(RateLimitConfig{Store: failingRateStore{}, MaxRequests: 1, Window: time.Minute})

	require.Equal(t, http.StatusOK, ping(r).Code)
	require.Equal(t, http.StatusTooManyRequests, ping(r).Code)
	require.Equal(t, 2, recorded.FilterMessage("shared rate store unavailable, counting locally").Len())
}

func TestMemoryRateStoreWindows(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newMemoryRateStore(func() time.Time { return now })
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 10*time.Second, ttl)

	now = now.Add(4 * time.Second)
	count, ttl, err = store.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 6*time.Second, ttl)

	now = now.Add(7 * time.Second)
	count, _, err = store.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Untouched keys are swept once their window passes.
	_, _, err = store.Increment(ctx, "other", time.Second)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, _, err = store.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.NotContains(t, store.data, "other")
}
