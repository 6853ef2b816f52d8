package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/models"
	"github.com/ticketwell/authcore/internal/services"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
)

// LoginOrchestrator defines the interface for the login flow
type LoginOrchestrator interface {
	AttemptLogin(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error)
}

// SessionTerminator is the slice of the session registry the auth handler
// needs for logout.
type SessionTerminator interface {
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandler handles login and logout
type AuthHandler struct {
	login    LoginOrchestrator
	sessions SessionTerminator
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginOrchestrator, sessions SessionTerminator, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		login:    login,
		sessions: sessions,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	Token     string       `json:"token"`
	SessionID string       `json:"session_id"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	outcome, err := h.login.AttemptLogin(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Authentication is temporarily unavailable. Please retry.")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	switch outcome.Status {
	case services.LoginLockedOut:
		pkghttp.WriteLocked(w, "Too many failed login attempts. Please try again later.", outcome.RetryAfterSeconds)
	case services.LoginInvalidCredentials:
		// Identical response whether the account exists or not.
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case services.LoginSuccess:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(LoginResponse{
			Token:     outcome.Token,
			SessionID: outcome.Session.ID,
			ExpiresAt: outcome.Session.ExpiresAt.UTC().Format(time.RFC3339),
			User: UserResponse{
				ID:    outcome.User.ID,
				Email: outcome.User.Email,
				Name:  outcome.User.Name,
				Role:  outcome.User.Role,
			},
		})
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Logout terminates the caller's current session
// @Summary User logout
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.Logout(r.Context(), principal.SessionID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
