package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
)

type userKey struct{}

// APIKeyAuth resolves the calling user from a Bearer token or x-api-key
// header and stores it in the request context.
func APIKeyAuth(database *gorm.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				key = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			}
			if key == "" {
				key = strings.TrimSpace(r.Header.Get("x-api-key"))
			}

			user, err := db.UserByAPIKey(database.WithContext(r.Context()), key)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error"}}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set by APIKeyAuth.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey{}).(*models.User)
	return user, ok && user != nil
}
