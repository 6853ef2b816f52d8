package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ticketwell/authcore/internal/database"
	"github.com/ticketwell/authcore/internal/models"
)

// SessionRepository handles database operations for sessions. Touch and the
// termination paths are single statements whose WHERE clauses re-evaluate
// the liveness predicate, so a terminate racing a touch always wins.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions
			(id, user_id, token_hash, browser, os, device_type, origin_ip, current_ip,
			 created_at, last_activity_at, expires_at, idle_timeout_seconds,
			 suspicious_activity, suspicious_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, NULL)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		s.ID, s.UserID, s.TokenHash, s.Browser, s.OS, s.DeviceType,
		s.OriginIP, s.CurrentIP, s.CreatedAt, s.LastActivityAt,
		s.ExpiresAt, s.IdleTimeoutSeconds,
	)
	return database.MapPostgresError(err)
}

// TouchResult is what a successful touch reports back.
type TouchResult struct {
	SessionID   string
	UserID      string
	Suspicious  bool
	JustFlagged bool // suspicious flag was set by this touch
}

// Touch advances last_activity_at and records the observed IP in one atomic
// statement. The WHERE clause re-checks the full liveness predicate
// (not terminated, absolute deadline not passed, not idle-expired) against
// the supplied clock value; an expired or terminated session matches no row
// and the method returns models.ErrNotFound, which callers treat as the
// normal "not live" outcome. The first IP divergence sets the suspicious
// flag; the flag is advisory and never terminates the session.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash, currentIP string, now time.Time) (*TouchResult, error) {
	query := `
		UPDATE sessions AS s
		SET last_activity_at = $2,
		    suspicious_activity = CASE
		        WHEN s.current_ip <> $3 AND NOT s.suspicious_activity THEN true
		        ELSE s.suspicious_activity
		    END,
		    suspicious_reason = CASE
		        WHEN s.current_ip <> $3 AND NOT s.suspicious_activity THEN $4
		        ELSE s.suspicious_reason
		    END,
		    current_ip = $3
		FROM sessions AS prev
		WHERE prev.id = s.id
		  AND s.token_hash = $1
		  AND s.terminated_at IS NULL
		  AND s.expires_at > $2
		  AND s.last_activity_at >= $2::timestamptz - make_interval(secs => s.idle_timeout_seconds)
		RETURNING s.id, s.user_id, s.suspicious_activity, prev.suspicious_activity
	`

	var res TouchResult
	var prevSuspicious bool
	err := r.db.Pool.QueryRow(ctx, query, tokenHash, now, currentIP, models.SuspiciousReasonIPChanged).
		Scan(&res.SessionID, &res.UserID, &res.Suspicious, &prevSuspicious)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	res.JustFlagged = res.Suspicious && !prevSuspicious
	return &res, nil
}

// GetByID returns one session, terminated or not.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := sessionSelect + ` WHERE id = $1`
	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, id))
}

// ListByUser returns all of a user's sessions, most recently active first.
// Terminated sessions are included; they are history until the retention
// sweep removes them.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := sessionSelect + ` WHERE user_id = $1 ORDER BY last_activity_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanSessionRows(rows)
}

// Terminate stamps a session terminated. Idempotent: a session already
// terminated keeps its original timestamp and reason.
func (r *SessionRepository) Terminate(ctx context.Context, id, reason string, now time.Time) error {
	query := `
		UPDATE sessions SET terminated_at = $2, terminated_reason = $3
		WHERE id = $1 AND terminated_at IS NULL
	`

	_, err := r.db.Pool.Exec(ctx, query, id, now, reason)
	return database.MapPostgresError(err)
}

// TerminateAllForUser terminates every live session of a user except the
// one named by exceptID (pass "" to terminate all of them).
func (r *SessionRepository) TerminateAllForUser(ctx context.Context, userID, exceptID, reason string, now time.Time) (int64, error) {
	query := `
		UPDATE sessions SET terminated_at = $2, terminated_reason = $3
		WHERE user_id = $1 AND id <> $4 AND terminated_at IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, now, reason, exceptID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// SweepExpired stamps passively expired sessions with the EXPIRED reason so
// reporting can distinguish them from explicit terminations. Liveness is
// still always computed on read; the stamp is bookkeeping, not enforcement.
func (r *SessionRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE sessions SET terminated_at = $1, terminated_reason = $2
		WHERE terminated_at IS NULL
		  AND (expires_at <= $1
		       OR last_activity_at < $1::timestamptz - make_interval(secs => idle_timeout_seconds))
	`

	result, err := r.db.Pool.Exec(ctx, query, now, models.TerminationExpired)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteTerminatedBefore removes terminated sessions past the retention
// window.
func (r *SessionRepository) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE terminated_at IS NOT NULL AND terminated_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

const sessionSelect = `
	SELECT id, user_id, token_hash, browser, os, device_type, origin_ip, current_ip,
	       created_at, last_activity_at, expires_at, idle_timeout_seconds,
	       suspicious_activity, suspicious_reason, terminated_at, terminated_reason
	FROM sessions`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session
	err := scanner.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.Browser, &s.OS, &s.DeviceType,
		&s.OriginIP, &s.CurrentIP, &s.CreatedAt, &s.LastActivityAt,
		&s.ExpiresAt, &s.IdleTimeoutSeconds, &s.SuspiciousActivity,
		&s.SuspiciousReason, &s.TerminatedAt, &s.TerminatedReason,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return sessions, nil
}
