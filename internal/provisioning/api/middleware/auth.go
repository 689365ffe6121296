// Package middleware provides HTTP middleware for the DriftFS provisioning API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/driftfs/driftfs/internal/provisioning/api/auth"
	"github.com/driftfs/driftfs/pkg/directory/authz"
)

// Context key type for storing claims
type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims from the request context.
// Returns nil if no claims are present.
//
// This function should only be called within handler code that runs after
// the JWTAuth middleware has processed the request. If called before
// authentication, or in routes without JWTAuth middleware, it will return nil.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims returns a context carrying the given claims. Exposed for
// handler tests that bypass the JWTAuth middleware.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// writeUnauthorized writes the provisioning unauthorized envelope. The HTTP
// status stays 200; clients dispatch on meta.statuscode 997.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]interface{}{
		"meta": map[string]interface{}{
			"status":     "failure",
			"statuscode": 997,
			"message":    message,
		},
	})
}

// JWTAuth is a middleware that validates Bearer tokens in the Authorization header.
// If valid, the claims are stored in the request context.
// If invalid or missing, writes the 997 unauthorized envelope.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				writeUnauthorized(w, "Authorization header required")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin blocks callers who are not members of the admin group.
// Membership is resolved per request, so revocations apply immediately.
// Must be used after JWTAuth middleware.
func RequireAdmin(resolver authz.RoleResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeUnauthorized(w, "Authentication required")
				return
			}

			admin, err := resolver.IsAdmin(r.Context(), claims.Username)
			if err != nil || !admin {
				writeUnauthorized(w, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
