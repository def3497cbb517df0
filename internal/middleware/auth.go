package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/service"
)

const (
	// minAuthFailureDuration is the minimum time a rejected API key takes,
	// so unknown prefixes and bad secrets look alike.
	minAuthFailureDuration = 200 * time.Millisecond

	// TeamIDHeader selects which of the caller's teams a session acts for.
	TeamIDHeader = "X-Team-ID"

	apiKeyHeader = "X-API-Key"
	apiKeyPrefix = "ak_"
)

// SessionAuthenticator resolves a session token to a principal.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token, teamID string) (*model.AuthContext, error)
}

// KeyAuthenticator resolves an API key to a principal.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, key string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Sessions SessionAuthenticator
	Keys     KeyAuthenticator
	// AllowKeys accepts API keys in addition to session tokens.
	AllowKeys bool
}

// Auth returns a middleware that authenticates requests with a session
// token or an API key and injects the principal into the context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := cfg.Logger.With(
				slog.String("ip", getClientIP(r)),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			credential, isKey := extractCredential(r)
			if credential == "" {
				log.Warn("authentication failed", slog.String("reason", "missing_credentials"))
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
				return
			}

			var (
				authCtx *model.AuthContext
				err     error
			)
			teamID := strings.TrimSpace(r.Header.Get(TeamIDHeader))

			if isKey {
				if !cfg.AllowKeys {
					log.Warn("authentication failed", slog.String("reason", "key_not_accepted"))
					writeError(w, http.StatusUnauthorized, "unauthorized", "this endpoint requires a user session")
					return
				}
				start := time.Now()
				authCtx, err = cfg.Keys.Authenticate(r.Context(), credential)
				if err == nil && teamID != "" && teamID != authCtx.TeamID {
					err = service.ErrForbidden
				}
				if err != nil && !errors.Is(err, service.ErrForbidden) {
					if elapsed := time.Since(start); elapsed < minAuthFailureDuration {
						time.Sleep(minAuthFailureDuration - elapsed)
					}
				}
			} else {
				authCtx, err = cfg.Sessions.Authenticate(r.Context(), credential, teamID)
			}

			switch {
			case err == nil:
			case errors.Is(err, service.ErrForbidden):
				log.Warn("authentication failed", slog.String("reason", "team_not_allowed"), slog.String("team_id", teamID))
				writeError(w, http.StatusForbidden, "forbidden", "not a member of the requested team")
				return
			case errors.Is(err, service.ErrUnauthenticated):
				log.Warn("authentication failed", slog.String("reason", "invalid_credentials"), slog.Bool("api_key", isKey))
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			default:
				log.Error("authentication error", slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			log.Debug("authentication successful",
				slog.String("principal", authCtx.PrincipalID()),
				slog.String("team_id", authCtx.TeamID),
			)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential returns the bearer credential and whether it is an
// API key. Supports "Authorization: Bearer <token>" and "X-API-Key: <key>".
func extractCredential(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, strings.HasPrefix(token, apiKeyPrefix)
	}
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key, true
	}
	return "", false
}
