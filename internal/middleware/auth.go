package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"prophub/internal/auth"
	"prophub/internal/httputil"
)

// AuthMiddleware verifies the bearer token when one is sent and stores the
// user ID in the request context. Requests without a token pass through as
// anonymous; gated routes resolve them to Unresolved.
//
// EventSource cannot set headers, so an access_token query parameter is
// accepted in place of the Authorization header.
func AuthMiddleware(verifier auth.TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := bearerToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}
			if token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("rejected token", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}

// bearerToken extracts the token; present is false when the request carries none
func bearerToken(r *http.Request) (token string, present bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", true
		}
		return strings.TrimSpace(value), true
	}
	if q := r.URL.Query().Get("access_token"); q != "" {
		return q, true
	}
	return "", false
}
