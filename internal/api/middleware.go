package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/breakdesk/breakdesk/internal/storage"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// contextKeyUser is the context key for the authenticated user.
const contextKeyUser contextKey = "user"

// authMiddleware resolves the bearer token to the current user record.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Access token required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header")
			return
		}

		user, err := s.auth.Verify(r.Context(), parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects requests from non-administrators.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		if user == nil || !user.IsAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestUser returns the authenticated user bound to the request, if any.
func requestUser(r *http.Request) *storage.User {
	user, _ := r.Context().Value(contextKeyUser).(*storage.User)
	return user
}
