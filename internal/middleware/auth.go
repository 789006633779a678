package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/auth"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// UserIDKey is the context key for storing the authenticated user ID.
const UserIDKey contextKey = "user_id"

// GetUserID extracts the user ID from the context.
// Returns zero if not found.
func GetUserID(ctx context.Context) models.UserID {
	userID, _ := ctx.Value(UserIDKey).(models.UserID)
	return userID
}

// RequireAuth returns a middleware that validates identity tokens. It extracts
// the token from the Authorization header, validates it, and adds the user ID
// to the request context.
func RequireAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
