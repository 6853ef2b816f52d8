package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ticketwell/authcore/internal/config"
	"github.com/ticketwell/authcore/internal/models"
	pkglogger "github.com/ticketwell/authcore/pkg/logger"
)

// LockoutStore defines the persistence operations the lockout guard needs.
// Implementations must make IncrementFailure atomic: the counter update,
// window decay and lock engagement happen as one operation, so concurrent
// failures for the same subject each observe a distinct count.
type LockoutStore interface {
	IncrementFailure(ctx context.Context, kind models.SubjectKind, key, failContext string, now time.Time, maxAttempts, lockoutSeconds, windowSeconds int) (attempts int, lockedUntil *time.Time, err error)
	Reset(ctx context.Context, kind models.SubjectKind, key string, now time.Time) error
	Get(ctx context.Context, kind models.SubjectKind, key string) (*models.LockoutRecord, error)
	Unlock(ctx context.Context, kind models.SubjectKind, key, actorID string, now time.Time) (wasLocked bool, err error)
	DeleteByKind(ctx context.Context, kind models.SubjectKind) (int64, error)
	Stats(ctx context.Context, kind models.SubjectKind, now time.Time) (*models.LockoutStats, error)
	List(ctx context.Context, kind models.SubjectKind, status string, now time.Time, limit, offset int) ([]*models.LockoutRecord, error)
}

// LockoutService is the brute-force guard. It tracks failed authentication
// attempts per account and per source IP under independent policies and
// engages a temporary lock when a subject crosses its threshold.
type LockoutService struct {
	store       LockoutStore
	cfg         config.LockoutConfig
	clock       Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	alerts      AlertService
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(store LockoutStore, cfg config.LockoutConfig, clock Clock, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, alerts AlertService) *LockoutService {
	if alerts == nil {
		alerts = NoopAlertService{}
	}
	return &LockoutService{
		store:       store,
		cfg:         cfg,
		clock:       clock,
		logger:      logger,
		auditLogger: auditLogger,
		alerts:      alerts,
	}
}

func (s *LockoutService) policyFor(kind models.SubjectKind) config.LockoutPolicy {
	if kind == models.SubjectIP {
		return s.cfg.IP
	}
	return s.cfg.Account
}

// LockStatus is the answer to "may this subject attempt to authenticate".
type LockStatus struct {
	Locked           bool
	RemainingSeconds int
}

// IsLocked reports whether a subject currently holds an active lock. A
// subject with no record, or with a lock that has lapsed, is not locked.
func (s *LockoutService) IsLocked(ctx context.Context, kind models.SubjectKind, key string) (LockStatus, error) {
	if !kind.Valid() {
		return LockStatus{}, models.ErrBadRequest
	}

	rec, err := s.store.Get(ctx, kind, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return LockStatus{}, nil
		}
		return LockStatus{}, err
	}

	now := s.clock.Now()
	return LockStatus{
		Locked:           rec.Locked(now),
		RemainingSeconds: rec.RemainingLockSeconds(now),
	}, nil
}

// FailureResult reports what one recorded failure did to the subject.
type FailureResult struct {
	Attempts    int
	LockedUntil *time.Time
	LockEngaged bool // this failure crossed the threshold
}

// RecordFailure counts one failed attempt against a subject. When the count
// reaches the policy threshold the lock engages in the same atomic store
// operation; the threshold crossing is audited and alerted exactly once.
func (s *LockoutService) RecordFailure(ctx context.Context, kind models.SubjectKind, key, failContext string) (*FailureResult, error) {
	if !kind.Valid() {
		return nil, models.ErrBadRequest
	}

	policy := s.policyFor(kind)
	now := s.clock.Now()

	attempts, lockedUntil, err := s.store.IncrementFailure(ctx, kind, key, failContext, now,
		policy.MaxAttempts,
		int(policy.LockoutDuration.Seconds()),
		int(policy.AttemptWindow.Seconds()),
	)
	if err != nil {
		return nil, err
	}

	result := &FailureResult{
		Attempts:    attempts,
		LockedUntil: lockedUntil,
		LockEngaged: attempts == policy.MaxAttempts && lockedUntil != nil,
	}

	if result.LockEngaged {
		s.logger.Warn("lockout engaged",
			slog.String("subject_kind", string(kind)),
			slog.Int("failed_attempts", attempts))
		s.auditLogger.LogLockoutEvent(pkglogger.AuditEvent{
			EventType:   "lockout_engaged",
			SubjectKind: string(kind),
			SubjectKey:  key,
			Metadata:    map[string]string{"failed_attempts": strconv.Itoa(attempts)},
		})
		if err := s.alerts.LockoutEngaged(ctx, kind, key, attempts, *lockedUntil); err != nil {
			s.logger.Warn("lockout alert delivery failed", slog.Any("error", err))
		}
	}

	return result, nil
}

// RecordSuccess clears the failure counter and any lapsed lock for a subject
// after a successful authentication. Idempotent.
func (s *LockoutService) RecordSuccess(ctx context.Context, kind models.SubjectKind, key string) error {
	if !kind.Valid() {
		return models.ErrBadRequest
	}
	return s.store.Reset(ctx, kind, key, s.clock.Now())
}

// Unlock is the administrative override. It clears the lock and the counter
// and records who did it. Returns models.ErrNotLocked when the subject had
// no active lock; the counter is still cleared in that case.
func (s *LockoutService) Unlock(ctx context.Context, kind models.SubjectKind, key, actorID string) error {
	if !kind.Valid() {
		return models.ErrBadRequest
	}

	wasLocked, err := s.store.Unlock(ctx, kind, key, actorID, s.clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotLocked
		}
		return err
	}

	s.auditLogger.LogLockoutEvent(pkglogger.AuditEvent{
		EventType:   "lockout_unlocked",
		SubjectKind: string(kind),
		SubjectKey:  key,
		ActorID:     actorID,
	})

	if !wasLocked {
		return models.ErrNotLocked
	}
	return nil
}

// ClearAll removes every record of a subject kind. Incident-recovery tool;
// audited with the acting administrator.
func (s *LockoutService) ClearAll(ctx context.Context, kind models.SubjectKind, actorID string) (int64, error) {
	if !kind.Valid() {
		return 0, models.ErrBadRequest
	}

	cleared, err := s.store.DeleteByKind(ctx, kind)
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogLockoutEvent(pkglogger.AuditEvent{
		EventType:   "lockout_cleared_all",
		SubjectKind: string(kind),
		ActorID:     actorID,
		Metadata:    map[string]string{"records_cleared": strconv.FormatInt(cleared, 10)},
	})

	return cleared, nil
}

// Stats aggregates the records of one subject kind.
func (s *LockoutService) Stats(ctx context.Context, kind models.SubjectKind) (*models.LockoutStats, error) {
	if !kind.Valid() {
		return nil, models.ErrBadRequest
	}
	return s.store.Stats(ctx, kind, s.clock.Now())
}

// List returns a page of lockout records, optionally filtered by status.
func (s *LockoutService) List(ctx context.Context, kind models.SubjectKind, status string, limit, offset int) ([]*models.LockoutRecord, error) {
	if !kind.Valid() {
		return nil, models.ErrBadRequest
	}
	if status != "" && status != "locked" && status != "unlocked" {
		return nil, models.ErrBadRequest
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, kind, status, s.clock.Now(), limit, offset)
}
