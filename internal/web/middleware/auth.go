package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ownerContextKey contextKey = "owner"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// ownerFromToken verifies an HS256 token and returns its subject.
func ownerFromToken(tokenString string, secret []byte) (string, error) {
	if tokenString == "" {
		return "", errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	return strings.TrimSpace(claims.Subject), nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth is middleware that requires a valid bearer token. The token's
// subject becomes the owner every store query is scoped to.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := ownerFromToken(bearerToken(r), key)
			if err != nil {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if owner == "" {
				http.Error(w, `{"error": "permission_denied"}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerFromContext retrieves the owner scope from the request context
func GetOwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}

// MustGetOwner retrieves the owner scope from context.
// If not available, writes an error response and returns "".
// Handlers should return immediately after receiving "".
func MustGetOwner(ctx context.Context, w http.ResponseWriter) string {
	owner := GetOwnerFromContext(ctx)
	if owner == "" {
		http.Error(w, `{"error": "permission_denied"}`, http.StatusForbidden)
		return ""
	}
	return owner
}

// SetOwnerInContext adds an owner scope to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetOwnerInContext(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}
