package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ticketwell/authcore/internal/config"
	"github.com/ticketwell/authcore/internal/models"
	"github.com/ticketwell/authcore/internal/repositories"
	pkglogger "github.com/ticketwell/authcore/pkg/logger"
)

// fakeClock is a manually advanced Clock for deterministic expiry tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memLockoutStore is an in-memory LockoutStore with the same atomicity
// contract as the Postgres implementation: every IncrementFailure holds the
// lock for the whole read-modify-write, so concurrent failures each observe
// a distinct count.
type memLockoutStore struct {
	mu      sync.Mutex
	records map[string]*models.LockoutRecord

	// failWith, when set, makes every operation fail. Used to simulate
	// storage outages.
	failWith error
}

func newMemLockoutStore() *memLockoutStore {
	return &memLockoutStore{records: make(map[string]*models.LockoutRecord)}
}

func lockoutKey(kind models.SubjectKind, key string) string {
	return string(kind) + "|" + key
}

func (m *memLockoutStore) IncrementFailure(ctx context.Context, kind models.SubjectKind, key, failContext string, now time.Time, maxAttempts, lockoutSeconds, windowSeconds int) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, nil, m.failWith
	}

	rec, ok := m.records[lockoutKey(kind, key)]
	if !ok {
		rec = &models.LockoutRecord{
			ID:          uuid.New().String(),
			SubjectKind: kind,
			SubjectKey:  key,
			CreatedAt:   now,
		}
		m.records[lockoutKey(kind, key)] = rec
	}

	windowLapsed := windowSeconds > 0 && rec.LastFailedAt != nil &&
		rec.LastFailedAt.Before(now.Add(-time.Duration(windowSeconds)*time.Second))
	if !ok || windowLapsed {
		rec.FailedAttempts = 1
	} else {
		rec.FailedAttempts++
	}

	if rec.FailedAttempts >= maxAttempts {
		until := now.Add(time.Duration(lockoutSeconds) * time.Second)
		rec.LockedUntil = &until
	}

	lastFailed := now
	rec.LastFailedAt = &lastFailed
	rec.LastFailedContext = &failContext
	rec.UpdatedAt = now

	var until *time.Time
	if rec.LockedUntil != nil {
		u := *rec.LockedUntil
		until = &u
	}
	return rec.FailedAttempts, until, nil
}

func (m *memLockoutStore) Reset(ctx context.Context, kind models.SubjectKind, key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if rec, ok := m.records[lockoutKey(kind, key)]; ok {
		rec.FailedAttempts = 0
		rec.LockedUntil = nil
		rec.UpdatedAt = now
	}
	return nil
}

func (m *memLockoutStore) Get(ctx context.Context, kind models.SubjectKind, key string) (*models.LockoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	rec, ok := m.records[lockoutKey(kind, key)]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *memLockoutStore) Unlock(ctx context.Context, kind models.SubjectKind, key, actorID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}

	rec, ok := m.records[lockoutKey(kind, key)]
	if !ok {
		return false, models.ErrNotFound
	}

	wasLocked := rec.Locked(now)
	rec.FailedAttempts = 0
	rec.LockedUntil = nil
	rec.UnlockedAt = &now
	rec.UnlockedBy = &actorID
	rec.UpdatedAt = now
	return wasLocked, nil
}

func (m *memLockoutStore) DeleteByKind(ctx context.Context, kind models.SubjectKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	var deleted int64
	for k, rec := range m.records {
		if rec.SubjectKind == kind {
			delete(m.records, k)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memLockoutStore) Stats(ctx context.Context, kind models.SubjectKind, now time.Time) (*models.LockoutStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	stats := &models.LockoutStats{}
	for _, rec := range m.records {
		if rec.SubjectKind != kind {
			continue
		}
		stats.Total++
		stats.TotalFailedAttempts += int64(rec.FailedAttempts)
		if rec.Locked(now) {
			stats.Locked++
			if rec.LastFailedAt != nil && !rec.LastFailedAt.Before(now.Add(-24*time.Hour)) {
				stats.LockedInLast24h++
			}
		}
	}
	stats.Unlocked = stats.Total - stats.Locked
	return stats, nil
}

func (m *memLockoutStore) List(ctx context.Context, kind models.SubjectKind, status string, now time.Time, limit, offset int) ([]*models.LockoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	matches := make([]*models.LockoutRecord, 0)
	for _, rec := range m.records {
		if rec.SubjectKind != kind {
			continue
		}
		locked := rec.Locked(now)
		if status == "locked" && !locked {
			continue
		}
		if status == "unlocked" && locked {
			continue
		}
		copied := *rec
		matches = append(matches, &copied)
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].LastFailedAt, matches[j].LastFailedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	if offset >= len(matches) {
		return []*models.LockoutRecord{}, nil
	}
	matches = matches[offset:]
	if limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

// memSessionStore is an in-memory SessionStore. Touch and the terminate
// methods re-check liveness under the lock, matching the single-statement
// behavior of the Postgres implementation.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	byHash   map[string]string

	failWith error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions: make(map[string]*models.Session),
		byHash:   make(map[string]string),
	}
}

func (m *memSessionStore) Create(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if _, exists := m.byHash[s.TokenHash]; exists {
		return models.ErrConflict
	}
	copied := *s
	m.sessions[s.ID] = &copied
	m.byHash[s.TokenHash] = s.ID
	return nil
}

func (m *memSessionStore) Touch(ctx context.Context, tokenHash, currentIP string, now time.Time) (*repositories.TouchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	id, ok := m.byHash[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	s := m.sessions[id]
	if !s.Live(now) {
		return nil, models.ErrNotFound
	}

	prevSuspicious := s.SuspiciousActivity
	if s.CurrentIP != currentIP && !s.SuspiciousActivity {
		s.SuspiciousActivity = true
		reason := models.SuspiciousReasonIPChanged
		s.SuspiciousReason = &reason
	}
	s.CurrentIP = currentIP
	s.LastActivityAt = now

	return &repositories.TouchResult{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Suspicious:  s.SuspiciousActivity,
		JustFlagged: s.SuspiciousActivity && !prevSuspicious,
	}, nil
}

func (m *memSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memSessionStore) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	matches := make([]*models.Session, 0)
	for _, s := range m.sessions {
		if s.UserID == userID {
			copied := *s
			matches = append(matches, &copied)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastActivityAt.After(matches[j].LastActivityAt)
	})
	return matches, nil
}

func (m *memSessionStore) Terminate(ctx context.Context, id, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if s, ok := m.sessions[id]; ok && s.TerminatedAt == nil {
		s.TerminatedAt = &now
		s.TerminatedReason = &reason
	}
	return nil
}

func (m *memSessionStore) TerminateAllForUser(ctx context.Context, userID, exceptID, reason string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	var terminated int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.ID != exceptID && s.TerminatedAt == nil {
			s.TerminatedAt = &now
			s.TerminatedReason = &reason
			terminated++
		}
	}
	return terminated, nil
}

func (m *memSessionStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	var stamped int64
	reason := models.TerminationExpired
	for _, s := range m.sessions {
		if s.TerminatedAt == nil && !s.Live(now) {
			s.TerminatedAt = &now
			s.TerminatedReason = &reason
			stamped++
		}
	}
	return stamped, nil
}

func (m *memSessionStore) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	var deleted int64
	for id, s := range m.sessions {
		if s.TerminatedAt != nil && s.TerminatedAt.Before(cutoff) {
			delete(m.byHash, s.TokenHash)
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// memUserStore is an in-memory UserStore keyed by email.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User

	failWith error
}

func newMemUserStore(users ...*models.User) *memUserStore {
	m := &memUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return m
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	u, ok := m.users[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// recordingAlerts counts alert deliveries.
type recordingAlerts struct {
	mu                 sync.Mutex
	lockoutsEngaged    int
	suspiciousSessions int
}

func (a *recordingAlerts) LockoutEngaged(ctx context.Context, kind models.SubjectKind, key string, attempts int, until time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lockoutsEngaged++
	return nil
}

func (a *recordingAlerts) SuspiciousSession(ctx context.Context, session *models.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.suspiciousSessions++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func discardAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(discardLogger())
}

func testLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		Account: config.LockoutPolicy{
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
			AttemptWindow:   0,
		},
		IP: config.LockoutPolicy{
			MaxAttempts:     20,
			LockoutDuration: 15 * time.Minute,
			AttemptWindow:   time.Hour,
		},
	}
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		IdleTimeout:   30 * time.Minute,
		AbsoluteTTL:   8 * time.Hour,
		SweepInterval: 5 * time.Minute,
		Retention:     30 * 24 * time.Hour,
	}
}
