package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func corsHandler(cfg CORSConfig) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func preflight(origin, method, headers string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs/tts", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}
	return req
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
	}{
		{"nothing configured", nil, "https://app.auralforge.dev", http.MethodGet, http.StatusOK, ""},
		{"exact match", []string{"https://app.auralforge.dev"}, "https://app.auralforge.dev", http.MethodGet, http.StatusOK, "https://app.auralforge.dev"},
		{"configured with trailing slash", []string{"https://app.auralforge.dev/"}, "https://app.auralforge.dev", http.MethodGet, http.StatusOK, "https://app.auralforge.dev"},
		{"case insensitive", []string{"https://App.AuralForge.dev"}, "https://app.auralforge.dev", http.MethodGet, http.StatusOK, "https://app.auralforge.dev"},
		{"other origin not decorated", []string{"https://app.auralforge.dev"}, "https://evil.example", http.MethodGet, http.StatusOK, ""},
		{"scheme must match", []string{"https://app.auralforge.dev"}, "http://app.auralforge.dev", http.MethodGet, http.StatusOK, ""},
		{"wildcard subdomain", []string{"https://*.auralforge.dev"}, "https://studio.auralforge.dev", http.MethodGet, http.StatusOK, "https://studio.auralforge.dev"},
		{"wildcard needs a label", []string{"https://*.auralforge.dev"}, "https://auralforge.dev", http.MethodGet, http.StatusOK, ""},
		{"wildcard is not a suffix match", []string{"https://*.auralforge.dev"}, "https://evilauralforge.dev", http.MethodGet, http.StatusOK, ""},
		{"wildcard keeps scheme", []string{"https://*.auralforge.dev"}, "http://studio.auralforge.dev", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowed

			req := httptest.NewRequest(tt.method, "/v1/jobs", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			corsHandler(cfg).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Values("Vary"), "Origin")
		})
	}
}

func TestCORS_NoOriginSkipsHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.auralforge.dev"}

	rec := httptest.NewRecorder()
	corsHandler(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Vary"))
}

func TestCORS_ExposesDomainHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.auralforge.dev"}

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/tts", nil)
	req.Header.Set("Origin", "https://app.auralforge.dev")
	rec := httptest.NewRecorder()
	corsHandler(cfg).ServeHTTP(rec, req)

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{"X-Request-ID", "X-Trace-ID", "X-RateLimit-Remaining", "Retry-After"} {
		assert.Contains(t, exposed, h)
	}
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{"https://app.auralforge.dev"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}

	rec := httptest.NewRecorder()
	corsHandler(cfg).ServeHTTP(rec, preflight("https://app.auralforge.dev", http.MethodPost, "authorization, x-team-id, idempotency-key"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	h := rec.Header()
	assert.Equal(t, "https://app.auralforge.dev", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST, DELETE", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", h.Get("Access-Control-Max-Age"))

	allowed := h.Get("Access-Control-Allow-Headers")
	for _, name := range []string{"Authorization", "X-API-Key", "X-Team-ID", "Idempotency-Key", "traceparent"} {
		assert.Contains(t, allowed, name)
	}
	assert.Empty(t, h.Get("Access-Control-Expose-Headers"), "preflight responses carry no body headers")
}

func TestCORS_PreflightRejections(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.auralforge.dev"}

	tests := []struct {
		name   string
		origin string
		method string
	}{
		{"unknown origin", "https://evil.example", http.MethodPost},
		{"method not served", "https://app.auralforge.dev", http.MethodPut},
		{"patch not served", "https://app.auralforge.dev", http.MethodPatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			corsHandler(cfg).ServeHTTP(rec, preflight(tt.origin, tt.method, ""))

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.auralforge.dev"}

	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.auralforge.dev")
	rec := httptest.NewRecorder()
	corsHandler(cfg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID"))
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.AllowCredentials)
	assert.Equal(t, 24*time.Hour, cfg.MaxAge)
}
