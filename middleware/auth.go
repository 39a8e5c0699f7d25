package middleware

import (
	"car-management/handlers"
	"car-management/handlers/auth"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// TokenParser verifies an access token.
type TokenParser interface {
	ParseAccessToken(token string) (*auth.AppClaims, error)
}

// AuthJWT rejects requests without a valid Bearer access token and stores
// the token claims in the request context.
func AuthJWT(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				handlers.RenderMessage(w, r, http.StatusUnauthorized, "Authorization header is required")
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				handlers.RenderMessage(w, r, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			claims, err := tokens.ParseAccessToken(parts[1])
			if err != nil {
				handlers.RenderMessage(w, r, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerID returns the authenticated user id stored by AuthJWT.
func CallerID(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.AppClaims)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
