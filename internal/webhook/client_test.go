package webhook

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDialAddress(t *testing.T) {
	tests := []struct {
		address string
		wantErr error
	}{
		{"93.184.216.34:443", nil},
		{"[2606:4700::6810:84e5]:443", nil},
		{"127.0.0.1:443", ErrPrivateIP},
		{"10.0.0.8:443", ErrPrivateIP},
		{"[::]:443", ErrPrivateIP},
		{"[64:ff9b::7f00:1]:443", ErrPrivateIP},
		{"no-port", ErrInvalidURL},
	}
	for _, tt := range tests {
		err := checkDialAddress("tcp", tt.address, nil)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("checkDialAddress(%q) = %v, want %v", tt.address, err, tt.wantErr)
		}
	}
}

func TestHTTPClient_RefusesPrivateDialUnlessInsecure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	// A hostname that passed validation but now resolves to loopback ends
	// up here with the loopback address.
	_, err := NewHTTPClient(false).Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrivateIP)
	assert.Zero(t, hits)

	resp, err := NewHTTPClient(true).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTPClient_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.RedirectHandler("https://example.com/", http.StatusFound))
	defer srv.Close()

	resp, err := NewHTTPClient(true).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}
