package middleware

import (
	"net/http"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
)

// RequireScope rejects callers whose key lacks scope; admin keys pass
// every check. It runs after Auth, so a request without an auth context
// is answered 401.
func RequireScope(scope string) func(http.Handler) http.Handler {
	message := "API key lacks the " + scope + " scope"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			switch {
			case authCtx == nil:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			case !authCtx.HasScope(scope):
				writeError(w, http.StatusForbidden, "FORBIDDEN", message)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireRead guards job and account reads.
func RequireRead() func(http.Handler) http.Handler { return RequireScope(model.ScopeRead) }

// RequireWrite guards edit submissions, uploads and key changes.
func RequireWrite() func(http.Handler) http.Handler { return RequireScope(model.ScopeWrite) }

// RequireWebhook guards webhook endpoint management.
func RequireWebhook() func(http.Handler) http.Handler { return RequireScope(model.ScopeWebhook) }

// RequireAdmin guards credit grants and operator views.
func RequireAdmin() func(http.Handler) http.Handler { return RequireScope(model.ScopeAdmin) }
