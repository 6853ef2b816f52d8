package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/ticketwell/authcore/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

// PrincipalContextKey is the key for storing the authenticated principal in context
const PrincipalContextKey contextKey = "principal"

// Principal identifies the authenticated caller: the user and the session
// their bearer token resolved to.
type Principal struct {
	UserID     string
	SessionID  string
	Suspicious bool
}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipal extracts the authenticated principal from the request
// context, or nil when the request did not pass session authentication.
func GetPrincipal(r *http.Request) *Principal {
	p, ok := r.Context().Value(PrincipalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// UserRepository interface for fetching user data
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RequireRole creates a middleware that enforces role-based access control.
// The role is read from the database on every request so a demotion takes
// effect immediately, not at next login.
func RequireRole(userRepo UserRepository, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := userRepo.GetByID(r.Context(), principal.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if user.Role != role {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
