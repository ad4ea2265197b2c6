package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a type for context keys
type contextKey string

const (
	// SubjectKey is the context key for the authenticated token subject
	SubjectKey contextKey = "subject"
)

// Middleware provides authentication middleware for HTTP handlers
type Middleware struct {
	authService *Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{authService: authService}
}

// Handler returns RequireAuth when required is set and OptionalAuth otherwise.
// The result plugs into mux.Router.Use.
func (m *Middleware) Handler(required bool) func(http.Handler) http.Handler {
	if required {
		return m.RequireAuth
	}
	return m.OptionalAuth
}

// RequireAuth is middleware that requires a valid JWT token
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
			return
		}

		subject, err := m.authService.ValidateAccessToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth is middleware that validates JWT if present but doesn't require it
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token != "" {
			subject, err := m.authService.ValidateAccessToken(token)
			if err == nil {
				ctx := context.WithValue(r.Context(), SubjectKey, subject)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// GetSubject extracts the token subject from the request context
func GetSubject(ctx context.Context) string {
	subject, _ := ctx.Value(SubjectKey).(string)
	return subject
}

// extractToken extracts the JWT token from the Authorization header or query parameter
func extractToken(r *http.Request) string {
	// First check Authorization header
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Fall back to query parameter for raw image links
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
