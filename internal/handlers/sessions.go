package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/models"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
)

// SessionRegistry is the slice of the session service the self-service
// endpoints need.
type SessionRegistry interface {
	ListForUser(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error)
	TerminateOwned(ctx context.Context, userID, sessionID string) error
	TerminateAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error)
}

// SessionHandler handles a user's own sessions
type SessionHandler struct {
	sessions SessionRegistry
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionRegistry) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SessionListResponse wraps the session listing
type SessionListResponse struct {
	Sessions []models.SessionView `json:"sessions"`
}

// List returns the caller's sessions, current one marked
// @Summary List own sessions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	views, err := h.sessions.ListForUser(r.Context(), principal.UserID, principal.SessionID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SessionListResponse{Sessions: views})
}

// TerminateOne terminates one of the caller's sessions by ID. Sessions that
// do not exist and sessions owned by someone else get the same 404.
// @Summary Terminate own session
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) TerminateOne(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(sessionID); err != nil {
		pkghttp.WriteNotFound(w, "Session not found")
		return
	}

	if err := h.sessions.TerminateOwned(r.Context(), principal.UserID, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TerminateOthersResponse reports how many sessions were signed out
type TerminateOthersResponse struct {
	Terminated int64 `json:"terminated"`
}

// TerminateOthers is "log out everywhere else": it terminates every live
// session of the caller except the current one.
// @Summary Terminate all other sessions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} TerminateOthersResponse
// @Failure 401 {object} ErrorResponse
// @Router /sessions/terminate-others [post]
func (h *SessionHandler) TerminateOthers(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	terminated, err := h.sessions.TerminateAllOthers(r.Context(), principal.UserID, principal.SessionID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TerminateOthersResponse{Terminated: terminated})
}
