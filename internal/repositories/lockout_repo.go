package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticketwell/authcore/internal/database"
	"github.com/ticketwell/authcore/internal/models"
)

// LockoutRepository handles database operations for lockout records. All
// counter mutations go through single atomic statements; no code path reads
// failed_attempts and writes it back in application code.
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// IncrementFailure records one failed attempt for a subject in a single
// atomic upsert. The statement creates the record on first failure,
// increments the counter (restarting it at 1 when an attempt window is
// configured and the previous failure fell outside it), and engages the lock
// in the same statement once the incremented count reaches maxAttempts.
// Concurrent callers for the same subject serialize on the row, so two
// simultaneous failures can never both observe attempt N.
func (r *LockoutRepository) IncrementFailure(
	ctx context.Context,
	kind models.SubjectKind,
	key string,
	failContext string,
	now time.Time,
	maxAttempts int,
	lockoutSeconds int,
	windowSeconds int,
) (attempts int, lockedUntil *time.Time, err error) {
	query := `
		INSERT INTO lockout_records
			(id, subject_kind, subject_key, failed_attempts, locked_until, last_failed_at, last_failed_context, created_at, updated_at)
		VALUES
			($1, $2, $3, 1,
			 CASE WHEN 1 >= $5::int THEN $4::timestamptz + make_interval(secs => $6) END,
			 $4, $7, $4, $4)
		ON CONFLICT (subject_kind, subject_key) DO UPDATE SET
			failed_attempts = CASE
				WHEN $8::int > 0
					AND lockout_records.last_failed_at IS NOT NULL
					AND lockout_records.last_failed_at < $4::timestamptz - make_interval(secs => $8)
				THEN 1
				ELSE lockout_records.failed_attempts + 1
			END,
			locked_until = CASE
				WHEN (CASE
					WHEN $8::int > 0
						AND lockout_records.last_failed_at IS NOT NULL
						AND lockout_records.last_failed_at < $4::timestamptz - make_interval(secs => $8)
					THEN 1
					ELSE lockout_records.failed_attempts + 1
				END) >= $5::int
				THEN $4::timestamptz + make_interval(secs => $6)
				ELSE lockout_records.locked_until
			END,
			last_failed_at = $4,
			last_failed_context = $7,
			updated_at = $4
		RETURNING failed_attempts, locked_until
	`

	var until *time.Time
	err = r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), kind, key, now,
		maxAttempts, lockoutSeconds, failContext, windowSeconds,
	).Scan(&attempts, &until)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return attempts, until, nil
}

// Reset clears the failure counter and lock after a successful
// authentication. Idempotent; a missing record is not an error.
func (r *LockoutRepository) Reset(ctx context.Context, kind models.SubjectKind, key string, now time.Time) error {
	query := `
		UPDATE lockout_records
		SET failed_attempts = 0, locked_until = NULL, updated_at = $3
		WHERE subject_kind = $1 AND subject_key = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, kind, key, now)
	return database.MapPostgresError(err)
}

// Get returns the record for a subject, or models.ErrNotFound.
func (r *LockoutRepository) Get(ctx context.Context, kind models.SubjectKind, key string) (*models.LockoutRecord, error) {
	query := `
		SELECT id, subject_kind, subject_key, failed_attempts, locked_until,
		       last_failed_at, last_failed_context, unlocked_at, unlocked_by,
		       created_at, updated_at
		FROM lockout_records
		WHERE subject_kind = $1 AND subject_key = $2
	`

	return scanLockoutRow(r.db.Pool.QueryRow(ctx, query, kind, key))
}

// Unlock is the administrative override. It resets the counter, clears the
// lock and stamps who did it, returning the pre-update state so the caller
// can tell whether anything was actually locked.
func (r *LockoutRepository) Unlock(ctx context.Context, kind models.SubjectKind, key, actorID string, now time.Time) (wasLocked bool, err error) {
	query := `
		UPDATE lockout_records AS rec
		SET failed_attempts = 0, locked_until = NULL,
		    unlocked_at = $4, unlocked_by = $5, updated_at = $4
		FROM lockout_records AS prev
		WHERE prev.id = rec.id AND rec.subject_kind = $1 AND rec.subject_key = $2
		RETURNING prev.locked_until IS NOT NULL AND prev.locked_until > $3
	`

	err = r.db.Pool.QueryRow(ctx, query, kind, key, now, now, actorID).Scan(&wasLocked)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return wasLocked, nil
}

// DeleteByKind removes every record of a subject kind. This is the only
// path that hard-deletes lockout records; used for incident recovery.
func (r *LockoutRepository) DeleteByKind(ctx context.Context, kind models.SubjectKind) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM lockout_records WHERE subject_kind = $1`, kind)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// Stats aggregates the records of one subject kind for dashboards.
func (r *LockoutRepository) Stats(ctx context.Context, kind models.SubjectKind, now time.Time) (*models.LockoutStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE locked_until IS NOT NULL AND locked_until > $2),
		       COALESCE(SUM(failed_attempts), 0),
		       COUNT(*) FILTER (WHERE locked_until IS NOT NULL AND last_failed_at >= $2::timestamptz - interval '24 hours')
		FROM lockout_records
		WHERE subject_kind = $1
	`

	var stats models.LockoutStats
	err := r.db.Pool.QueryRow(ctx, query, kind, now).Scan(
		&stats.Total, &stats.Locked, &stats.TotalFailedAttempts, &stats.LockedInLast24h,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	stats.Unlocked = stats.Total - stats.Locked
	return &stats, nil
}

// List returns a page of records of one subject kind, optionally filtered
// by lock status ("locked" or "unlocked"; empty means all).
func (r *LockoutRepository) List(ctx context.Context, kind models.SubjectKind, status string, now time.Time, limit, offset int) ([]*models.LockoutRecord, error) {
	query := `
		SELECT id, subject_kind, subject_key, failed_attempts, locked_until,
		       last_failed_at, last_failed_context, unlocked_at, unlocked_by,
		       created_at, updated_at
		FROM lockout_records
		WHERE subject_kind = $1
		  AND ($2 = ''
		       OR ($2 = 'locked' AND locked_until IS NOT NULL AND locked_until > $3)
		       OR ($2 = 'unlocked' AND (locked_until IS NULL OR locked_until <= $3)))
		ORDER BY last_failed_at DESC NULLS LAST
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.Pool.Query(ctx, query, kind, status, now, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	records := make([]*models.LockoutRecord, 0)
	for rows.Next() {
		rec, err := scanLockoutRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return records, nil
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLockoutRow(scanner rowScanner) (*models.LockoutRecord, error) {
	var rec models.LockoutRecord
	err := scanner.Scan(
		&rec.ID, &rec.SubjectKind, &rec.SubjectKey, &rec.FailedAttempts,
		&rec.LockedUntil, &rec.LastFailedAt, &rec.LastFailedContext,
		&rec.UnlockedAt, &rec.UnlockedBy, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}
