package models

import "time"

// Termination reasons stamped on sessions. terminated_reason is set once and
// never cleared; terminated sessions are kept as history until the retention
// sweep removes them.
const (
	TerminationLogout       = "logout"
	TerminationUserRevoked  = "user_revoked"
	TerminationAdminRevoked = "admin_revoked"
	TerminationExpired      = "expired"
)

// SuspiciousReasonIPChanged is recorded when a session is observed from an
// IP other than the one it was created from.
const SuspiciousReasonIPChanged = "ip-changed"

// Session is one authenticated browser/device session. The device descriptor
// is derived once from the user agent at creation and never updated. The
// bearer token itself is never stored; only its SHA-256 digest is.
type Session struct {
	ID                 string     `db:"id"`
	UserID             string     `db:"user_id"`
	TokenHash          string     `db:"token_hash"`
	Browser            string     `db:"browser"`
	OS                 string     `db:"os"`
	DeviceType         string     `db:"device_type"`
	OriginIP           string     `db:"origin_ip"`
	CurrentIP          string     `db:"current_ip"`
	CreatedAt          time.Time  `db:"created_at"`
	LastActivityAt     time.Time  `db:"last_activity_at"`
	ExpiresAt          time.Time  `db:"expires_at"`
	IdleTimeoutSeconds int        `db:"idle_timeout_seconds"`
	SuspiciousActivity bool       `db:"suspicious_activity"`
	SuspiciousReason   *string    `db:"suspicious_reason"`
	TerminatedAt       *time.Time `db:"terminated_at"`
	TerminatedReason   *string    `db:"terminated_reason"`
}

// Live reports whether the session is usable at the given time. Liveness is
// always derived from the stored timestamps, never cached: a session is live
// iff it has not been terminated, the absolute deadline has not passed, and
// it has not been idle longer than its idle timeout.
func (s *Session) Live(now time.Time) bool {
	if s.TerminatedAt != nil {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	return now.Sub(s.LastActivityAt) <= time.Duration(s.IdleTimeoutSeconds)*time.Second
}

// SessionView is the listing representation of a session. Age, remaining and
// inactive are computed from the clock at read time and never persisted.
type SessionView struct {
	ID                 string  `json:"id"`
	Browser            string  `json:"browser"`
	OS                 string  `json:"os"`
	DeviceType         string  `json:"device_type"`
	OriginIP           string  `json:"origin_ip"`
	CurrentIP          string  `json:"current_ip"`
	CreatedAt          string  `json:"created_at"`
	LastActivityAt     string  `json:"last_activity_at"`
	Current            bool    `json:"current"`
	Live               bool    `json:"live"`
	AgeSeconds         int64   `json:"age_seconds"`
	RemainingSeconds   int64   `json:"remaining_seconds"`
	InactiveSeconds    int64   `json:"inactive_seconds"`
	SuspiciousActivity bool    `json:"suspicious_activity"`
	SuspiciousReason   *string `json:"suspicious_reason,omitempty"`
	TerminatedReason   *string `json:"terminated_reason,omitempty"`
}

// View derives the listing representation at the given time. currentID is
// the session the caller's own bearer token resolved to.
func (s *Session) View(now time.Time, currentID string) SessionView {
	remaining := int64(0)
	if s.Live(now) {
		idleLeft := int64(s.IdleTimeoutSeconds) - int64(now.Sub(s.LastActivityAt).Seconds())
		absLeft := int64(s.ExpiresAt.Sub(now).Seconds())
		remaining = idleLeft
		if absLeft < remaining {
			remaining = absLeft
		}
	}

	return SessionView{
		ID:                 s.ID,
		Browser:            s.Browser,
		OS:                 s.OS,
		DeviceType:         s.DeviceType,
		OriginIP:           s.OriginIP,
		CurrentIP:          s.CurrentIP,
		CreatedAt:          s.CreatedAt.UTC().Format(time.RFC3339),
		LastActivityAt:     s.LastActivityAt.UTC().Format(time.RFC3339),
		Current:            s.ID == currentID,
		Live:               s.Live(now),
		AgeSeconds:         int64(now.Sub(s.CreatedAt).Seconds()),
		RemainingSeconds:   remaining,
		InactiveSeconds:    int64(now.Sub(s.LastActivityAt).Seconds()),
		SuspiciousActivity: s.SuspiciousActivity,
		SuspiciousReason:   s.SuspiciousReason,
		TerminatedReason:   s.TerminatedReason,
	}
}
