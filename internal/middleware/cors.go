package middleware

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the browser origins allowed to call the API. Entries are
// exact origins ("https://app.auralforge.dev") or subdomain patterns
// ("https://*.auralforge.dev"). No entries means no cross-origin access.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// Request headers a dashboard may send: credentials, team selection,
// submit idempotency and W3C trace context.
var corsRequestHeaders = []string{
	"Authorization",
	"Content-Type",
	"X-API-Key",
	TeamIDHeader,
	"Idempotency-Key",
	RequestIDHeader,
	"traceparent",
	"tracestate",
}

// Response headers scripts may read: correlation ids, rate limit state and
// Retry-After.
var corsExposedHeaders = []string{
	RequestIDHeader,
	TraceIDHeader,
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete}

// DefaultCORSConfig denies every origin and caches preflights for a day.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{MaxAge: 24 * time.Hour}
}

type wildcardOrigin struct {
	scheme string
	suffix string // ".auralforge.dev" for "https://*.auralforge.dev"
}

type originMatcher struct {
	exact     map[string]bool
	wildcards []wildcardOrigin
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		scheme, host, ok := strings.Cut(o, "://")
		if ok && strings.HasPrefix(host, "*.") {
			m.wildcards = append(m.wildcards, wildcardOrigin{scheme: scheme, suffix: host[1:]})
			continue
		}
		m.exact[o] = true
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	origin = strings.ToLower(origin)
	if m.exact[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, w := range m.wildcards {
		// "*.a.com" never matches "a.com" itself.
		if u.Scheme == w.scheme && strings.HasSuffix(u.Host, w.suffix) && len(u.Host) > len(w.suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflights and decorates responses for allowed origins.
// Requests from other origins pass through undecorated so the browser
// blocks them; their preflights get 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := newOriginMatcher(cfg.AllowedOrigins)
	allowHeaders := strings.Join(corsRequestHeaders, ", ")
	exposeHeaders := strings.Join(corsExposedHeaders, ", ")
	allowMethods := strings.Join(corsMethods, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !origins.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
				next.ServeHTTP(w, r)
				return
			}

			if !slices.Contains(corsMethods, r.Header.Get("Access-Control-Request-Method")) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
