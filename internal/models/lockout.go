package models

import "time"

// SubjectKind identifies what a lockout counter applies to.
type SubjectKind string

const (
	SubjectAccount SubjectKind = "account"
	SubjectIP      SubjectKind = "ip"
)

// Valid reports whether the kind is one of the known subject kinds.
func (k SubjectKind) Valid() bool {
	return k == SubjectAccount || k == SubjectIP
}

// LockoutRecord tracks failed authentication attempts for one subject.
// There is exactly one record per (subject_kind, subject_key) pair; it is
// created lazily on the first failure and reset (not deleted) on success
// so the failure history survives for auditing.
type LockoutRecord struct {
	ID                string      `db:"id"`
	SubjectKind       SubjectKind `db:"subject_kind"`
	SubjectKey        string      `db:"subject_key"`
	FailedAttempts    int         `db:"failed_attempts"`
	LockedUntil       *time.Time  `db:"locked_until"`
	LastFailedAt      *time.Time  `db:"last_failed_at"`
	LastFailedContext *string     `db:"last_failed_context"`
	UnlockedAt        *time.Time  `db:"unlocked_at"`
	UnlockedBy        *string     `db:"unlocked_by"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

// Locked reports whether the record holds an active lock at the given time.
// A locked_until value in the past means the lock has lapsed.
func (r *LockoutRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// RemainingLockSeconds returns whole seconds until the lock lapses, rounded
// up, or 0 when the record is not locked.
func (r *LockoutRecord) RemainingLockSeconds(now time.Time) int {
	if !r.Locked(now) {
		return 0
	}
	remaining := r.LockedUntil.Sub(now)
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// LockoutStats aggregates lockout records of one subject kind for dashboards.
type LockoutStats struct {
	Total               int64 `json:"total"`
	Locked              int64 `json:"locked"`
	Unlocked            int64 `json:"unlocked"`
	TotalFailedAttempts int64 `json:"total_failed_attempts"`
	LockedInLast24h     int64 `json:"locked_in_last_24h"`
}
