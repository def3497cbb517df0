package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPIPath = "../../docs/api/openapi.yaml"

func loadOpenAPI(t *testing.T) (*openapi3.T, routers.Router) {
	t.Helper()

	doc, err := openapi3.NewLoader().LoadFromFile(openAPIPath)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))

	router, err := gorillamux.NewRouter(doc)
	require.NoError(t, err)
	return doc, router
}

func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	doc, _ := loadOpenAPI(t)
	mux, ok := newTestRouter(t).(chi.Routes)
	require.True(t, ok)

	err := chi.Walk(mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		item := doc.Paths.Find(route)
		if assert.NotNil(t, item, "route %s is not documented", route) {
			assert.NotNil(t, item.GetOperation(method), "%s %s is not documented", method, route)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpenAPI_ResponsesMatchSchema(t *testing.T) {
	_, specRouter := loadOpenAPI(t)
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
	}{
		{"index", http.MethodGet, "/", "", ""},
		{"health", http.MethodGet, "/healthz", "", ""},
		{"readiness", http.MethodGet, "/readyz", "", ""},
		{"unauthorized envelope", http.MethodGet, "/v1/jobs", "", ""},
		{"forbidden envelope", http.MethodPost, "/v1/tts/synthesize", readKey, `{"text":"hi","voiceId":"alloy"}`},
		{"webhook stub", http.MethodPost, "/v1/webhooks/stripe", "", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://localhost:4000"+tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			route, params, err := specRouter.FindRoute(req)
			require.NoError(t, err)

			err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
				RequestValidationInput: &openapi3filter.RequestValidationInput{
					Request:    req,
					PathParams: params,
					Route:      route,
				},
				Status: rec.Code,
				Header: rec.Header(),
				Body:   io.NopCloser(bytes.NewReader(rec.Body.Bytes())),
			})
			assert.NoError(t, err, "status %d body %s", rec.Code, rec.Body.String())
		})
	}
}
