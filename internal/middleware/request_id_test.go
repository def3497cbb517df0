package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"caller id echoed", "batch-42.job-7", true},
		{"log injection replaced", "abc\n{\"level\":\"ERROR\"}", false},
		{"spaces replaced", "two words", false},
		{"too long replaced", strings.Repeat("r", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/tts/synthesize", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
				return
			}
			_, err := uuid.Parse(seen)
			assert.NoError(t, err, "expected a generated uuid, got %q", seen)
		})
	}
}

func TestGetTraceID_FollowsActiveSpan(t *testing.T) {
	router, _ := tracedRouter(t)
	var inside string
	router.(chi.Router).Get("/v1/voices", func(_ http.ResponseWriter, r *http.Request) {
		inside = GetTraceID(r.Context())
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/voices", nil))

	require.Len(t, inside, 32)
	assert.Equal(t, inside, rec.Header().Get(TraceIDHeader))
	assert.Empty(t, GetTraceID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
