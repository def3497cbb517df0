package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/cache"
	"github.com/auralforge/auralforge/internal/model"
)

type fakeLimiter struct {
	result *cache.RateLimitResult
	err    error
	seen   []string
}

func (f *fakeLimiter) CheckPrincipalRateLimit(_ context.Context, principal string, _, _ int) (*cache.RateLimitResult, error) {
	f.seen = append(f.seen, principal)
	return f.result, f.err
}

func (f *fakeLimiter) CheckIPRateLimit(_ context.Context, ip string, _, _ int) (*cache.RateLimitResult, error) {
	f.seen = append(f.seen, ip)
	return f.result, f.err
}

func rateLimitConfig(l Limiter) RateLimitConfig {
	return RateLimitConfig{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter:     l,
		Enabled:     true,
		PerMinute:   100,
		Burst:       100,
		IPPerSecond: 5,
		IPBurst:     10,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func authedRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/tts/synthesize", nil)
	return req.WithContext(auth.ContextWithAuth(req.Context(), &model.AuthContext{
		Kind:  model.PrincipalAPIKey,
		KeyID: "key-1",
	}))
}

func TestRateLimit_AllowsAndSetsHeaders(t *testing.T) {
	t.Parallel()
	l := &fakeLimiter{result: &cache.RateLimitResult{Allowed: true, Remaining: 99, ResetAt: time.Unix(1700000000, 0)}}

	rec := httptest.NewRecorder()
	RateLimit(rateLimitConfig(l))(okHandler()).ServeHTTP(rec, authedRequest())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"key:key-1"}, l.seen)
}

func TestRateLimit_RejectsWithRetryAfter(t *testing.T) {
	t.Parallel()
	l := &fakeLimiter{result: &cache.RateLimitResult{Allowed: false, RetryAfter: 1500 * time.Millisecond}}

	rec := httptest.NewRecorder()
	RateLimit(rateLimitConfig(l))(okHandler()).ServeHTTP(rec, authedRequest())

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"rate_limited"`)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()
	l := &fakeLimiter{err: errors.New("redis down")}

	rec := httptest.NewRecorder()
	RateLimit(rateLimitConfig(l))(okHandler()).ServeHTTP(rec, authedRequest())

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_SkipsWhenDisabledOrAnonymous(t *testing.T) {
	t.Parallel()
	l := &fakeLimiter{err: errors.New("must not be called")}

	cfg := rateLimitConfig(l)
	cfg.Enabled = false
	rec := httptest.NewRecorder()
	RateLimit(cfg)(okHandler()).ServeHTTP(rec, authedRequest())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	RateLimit(rateLimitConfig(l))(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, l.seen)
}

func TestRateLimitIP_UsesForwardedClient(t *testing.T) {
	t.Parallel()
	l := &fakeLimiter{result: &cache.RateLimitResult{Allowed: false, RetryAfter: 200 * time.Millisecond}}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	RateLimitIP(rateLimitConfig(l))(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"203.0.113.7"}, l.seen)
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:52314"
	assert.Equal(t, "198.51.100.4", getClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.1")
	assert.Equal(t, "192.0.2.1", getClientIP(req))
}
