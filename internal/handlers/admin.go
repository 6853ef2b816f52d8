package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/models"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
)

// LockoutAdmin is the slice of the lockout service the admin console needs.
type LockoutAdmin interface {
	List(ctx context.Context, kind models.SubjectKind, status string, limit, offset int) ([]*models.LockoutRecord, error)
	Unlock(ctx context.Context, kind models.SubjectKind, key, actorID string) error
	ClearAll(ctx context.Context, kind models.SubjectKind, actorID string) (int64, error)
	Stats(ctx context.Context, kind models.SubjectKind) (*models.LockoutStats, error)
}

// SessionAdmin is the slice of the session service the admin console needs.
type SessionAdmin interface {
	AdminTerminate(ctx context.Context, sessionID, actorID string) error
	AdminTerminateUser(ctx context.Context, userID, actorID string) (int64, error)
}

// AdminHandler handles the admin console endpoints
type AdminHandler struct {
	lockouts LockoutAdmin
	sessions SessionAdmin
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lockouts LockoutAdmin, sessions SessionAdmin) *AdminHandler {
	return &AdminHandler{
		lockouts: lockouts,
		sessions: sessions,
	}
}

// LockoutRecordResponse is the admin view of one lockout record.
type LockoutRecordResponse struct {
	SubjectKind      string  `json:"subject_kind"`
	SubjectKey       string  `json:"subject_key"`
	FailedAttempts   int     `json:"failed_attempts"`
	Locked           bool    `json:"locked"`
	LockedUntil      *string `json:"locked_until,omitempty"`
	RemainingSeconds int     `json:"remaining_seconds"`
	LastFailedAt     *string `json:"last_failed_at,omitempty"`
	UnlockedAt       *string `json:"unlocked_at,omitempty"`
	UnlockedBy       *string `json:"unlocked_by,omitempty"`
}

// LockoutListResponse wraps the paged lockout listing
type LockoutListResponse struct {
	Records []LockoutRecordResponse `json:"records"`
	Page    int                     `json:"page"`
	PerPage int                     `json:"per_page"`
}

func toLockoutResponse(rec *models.LockoutRecord, now time.Time) LockoutRecordResponse {
	resp := LockoutRecordResponse{
		SubjectKind:      string(rec.SubjectKind),
		SubjectKey:       rec.SubjectKey,
		FailedAttempts:   rec.FailedAttempts,
		Locked:           rec.Locked(now),
		RemainingSeconds: rec.RemainingLockSeconds(now),
		UnlockedBy:       rec.UnlockedBy,
	}
	if rec.LockedUntil != nil {
		s := rec.LockedUntil.UTC().Format(time.RFC3339)
		resp.LockedUntil = &s
	}
	if rec.LastFailedAt != nil {
		s := rec.LastFailedAt.UTC().Format(time.RFC3339)
		resp.LastFailedAt = &s
	}
	if rec.UnlockedAt != nil {
		s := rec.UnlockedAt.UTC().Format(time.RFC3339)
		resp.UnlockedAt = &s
	}
	return resp
}

func subjectKindParam(r *http.Request, name string) (models.SubjectKind, bool) {
	kind := models.SubjectKind(chi.URLParam(r, name))
	return kind, kind.Valid()
}

// ListLockouts returns a page of lockout records
// @Summary List lockout records
// @Security BearerAuth
// @Param kind query string true "Subject kind (account or ip)"
// @Param status query string false "Filter: locked or unlocked"
// @Param page query int false "Page number (1-based)"
// @Produce json
// @Success 200 {object} LockoutListResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/lockouts [get]
func (h *AdminHandler) ListLockouts(w http.ResponseWriter, r *http.Request) {
	kind := models.SubjectKind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		pkghttp.WriteBadRequest(w, "kind must be 'account' or 'ip'")
		return
	}

	status := r.URL.Query().Get("status")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	records, err := h.lockouts.List(r.Context(), kind, status, perPage, (page-1)*perPage)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "status must be 'locked' or 'unlocked'")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	now := time.Now()
	resp := LockoutListResponse{
		Records: make([]LockoutRecordResponse, 0, len(records)),
		Page:    page,
		PerPage: perPage,
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toLockoutResponse(rec, now))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// UnlockResponse reports the result of an admin unlock
type UnlockResponse struct {
	Message   string `json:"message"`
	WasLocked bool   `json:"was_locked"`
}

// UnlockSubject clears a subject's lock and counter. Unlocking a subject
// that was not locked is not an error; the response says which case it was.
// @Summary Unlock a subject
// @Security BearerAuth
// @Param kind path string true "Subject kind"
// @Param key path string true "Subject key"
// @Produce json
// @Success 200 {object} UnlockResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/lockouts/{kind}/{key}/unlock [post]
func (h *AdminHandler) UnlockSubject(w http.ResponseWriter, r *http.Request) {
	kind, ok := subjectKindParam(r, "kind")
	if !ok {
		pkghttp.WriteBadRequest(w, "kind must be 'account' or 'ip'")
		return
	}
	key := chi.URLParam(r, "key")
	if key == "" {
		pkghttp.WriteBadRequest(w, "key is required")
		return
	}

	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	resp := UnlockResponse{Message: "Subject unlocked", WasLocked: true}
	if err := h.lockouts.Unlock(r.Context(), kind, key, principal.UserID); err != nil {
		if errors.Is(err, models.ErrNotLocked) {
			resp = UnlockResponse{Message: "Subject was not locked", WasLocked: false}
		} else {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// ClearLockoutsResponse reports a bulk clear
type ClearLockoutsResponse struct {
	Cleared int64 `json:"cleared"`
}

// ClearLockouts removes every lockout record of one subject kind
// @Summary Clear all lockout records of a kind
// @Security BearerAuth
// @Param kind path string true "Subject kind"
// @Produce json
// @Success 200 {object} ClearLockoutsResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/lockouts/{kind} [delete]
func (h *AdminHandler) ClearLockouts(w http.ResponseWriter, r *http.Request) {
	kind, ok := subjectKindParam(r, "kind")
	if !ok {
		pkghttp.WriteBadRequest(w, "kind must be 'account' or 'ip'")
		return
	}

	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	cleared, err := h.lockouts.ClearAll(r.Context(), kind, principal.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ClearLockoutsResponse{Cleared: cleared})
}

// LockoutStats returns aggregates for one subject kind
// @Summary Lockout statistics
// @Security BearerAuth
// @Param kind path string true "Subject kind"
// @Produce json
// @Success 200 {object} models.LockoutStats
// @Failure 400 {object} ErrorResponse
// @Router /admin/lockouts/{kind}/stats [get]
func (h *AdminHandler) LockoutStats(w http.ResponseWriter, r *http.Request) {
	kind, ok := subjectKindParam(r, "kind")
	if !ok {
		pkghttp.WriteBadRequest(w, "kind must be 'account' or 'ip'")
		return
	}

	stats, err := h.lockouts.Stats(r.Context(), kind)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

// TerminateSession terminates any session by ID
// @Summary Terminate any session
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/sessions/{id} [delete]
func (h *AdminHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(sessionID); err != nil {
		pkghttp.WriteNotFound(w, "Session not found")
		return
	}

	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.AdminTerminate(r.Context(), sessionID, principal.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TerminateUserSessionsResponse reports a forced sign-out
type TerminateUserSessionsResponse struct {
	Terminated int64 `json:"terminated"`
}

// TerminateUserSessions force-signs-out every session of a user
// @Summary Terminate all sessions of a user
// @Security BearerAuth
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} TerminateUserSessionsResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/users/{id}/terminate-sessions [post]
func (h *AdminHandler) TerminateUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	terminated, err := h.sessions.AdminTerminateUser(r.Context(), userID, principal.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TerminateUserSessionsResponse{Terminated: terminated})
}
