package middleware

import (
	"net/http"
)

// SecurityConfig controls the response hardening applied to every route.
type SecurityConfig struct {
	// IsDevelopment skips HSTS so plain-http local stacks keep working.
	IsDevelopment bool
	// MaxRequestBodySize caps JSON request bodies in bytes.
	MaxRequestBodySize int64
}

// DefaultSecurityConfig enables HSTS and a 1 MiB body cap.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{MaxRequestBodySize: 1 << 20}
}

// apiHeaders are fixed for every JSON response. Audio bytes are served from
// presigned S3 URLs, never through this server, so nothing here needs to be
// embeddable or cacheable.
var apiHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"X-XSS-Protection":             "0",
	"Referrer-Policy":              "no-referrer",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Permissions-Policy":           "microphone=(), camera=(), geolocation=(), payment=(), usb=()",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Resource-Policy": "same-site",
	"Cache-Control":                "no-store",
}

const hstsValue = "max-age=31536000; includeSubDomains"

// Security sets the hardening headers before the handler runs, so error
// responses written by later middleware carry them too.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range apiHeaders {
				h.Set(k, v)
			}
			if !cfg.IsDevelopment {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects bodies whose declared length exceeds maxBytes and caps
// the rest with http.MaxBytesReader. Handlers turn the resulting
// *http.MaxBytesError into the same payload_too_large response.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
