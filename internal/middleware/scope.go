package middleware

import (
	"fmt"
	"net/http"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after Auth middleware.
// If multiple scopes are provided, having ANY of them is sufficient.
// Admin scope grants all permissions.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			for _, req := range required {
				if authCtx.HasScope(req) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if authCtx.TeamID == "" {
				writeError(w, http.StatusForbidden, "no_team", "no team membership")
				return
			}
			writeError(w, http.StatusForbidden, "forbidden",
				fmt.Sprintf("insufficient permissions, required scope: %s", required[0]))
		})
	}
}

// RequireRead is a convenience middleware for read scope.
func RequireRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeRead)
}

// RequireWrite is a convenience middleware for write scope.
func RequireWrite() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeWrite)
}

// RequireRole admits only session principals whose team role is at least min.
func RequireRole(min model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			switch {
			case authCtx == nil:
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			case authCtx.Kind != model.PrincipalUser:
				writeError(w, http.StatusForbidden, "forbidden", "this endpoint requires a user session")
			case authCtx.TeamID == "":
				writeError(w, http.StatusForbidden, "no_team", "no team membership")
			case !authCtx.Role.AtLeast(min):
				writeError(w, http.StatusForbidden, "forbidden",
					fmt.Sprintf("insufficient permissions, required role: %s", min))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
