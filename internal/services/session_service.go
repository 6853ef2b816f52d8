package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/config"
	"github.com/ticketwell/authcore/internal/device"
	"github.com/ticketwell/authcore/internal/models"
	"github.com/ticketwell/authcore/internal/repositories"
	pkglogger "github.com/ticketwell/authcore/pkg/logger"
)

// SessionStore defines the persistence operations the session registry
// needs. Touch and the terminate methods must be atomic with respect to each
// other: a terminate that commits first makes a concurrent touch observe a
// dead session.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Touch(ctx context.Context, tokenHash, currentIP string, now time.Time) (*repositories.TouchResult, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	Terminate(ctx context.Context, id, reason string, now time.Time) error
	TerminateAllForUser(ctx context.Context, userID, exceptID, reason string, now time.Time) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionService is the session registry: it issues bearer tokens, validates
// and refreshes them on every request, and terminates them. Liveness is
// always derived from stored timestamps at the moment of the check.
type SessionService struct {
	store       SessionStore
	tokens      *auth.SessionTokenManager
	cfg         config.SessionConfig
	clock       Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	alerts      AlertService
}

// NewSessionService creates a new SessionService
func NewSessionService(store SessionStore, tokens *auth.SessionTokenManager, cfg config.SessionConfig, clock Clock, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, alerts AlertService) *SessionService {
	if alerts == nil {
		alerts = NoopAlertService{}
	}
	return &SessionService{
		store:       store,
		tokens:      tokens,
		cfg:         cfg,
		clock:       clock,
		logger:      logger,
		auditLogger: auditLogger,
		alerts:      alerts,
	}
}

// Create registers a new session for a user who has just authenticated. The
// device descriptor is classified from the user agent once, here; it is
// never recomputed. Returns the session and the plaintext bearer token,
// which is never persisted.
func (s *SessionService) Create(ctx context.Context, userID, userAgent, ip string) (*models.Session, string, error) {
	plainToken, digest, err := s.tokens.Generate()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, "", fmt.Errorf("generate session token: %w", err)
	}

	now := s.clock.Now()
	info := device.Classify(userAgent)

	session := &models.Session{
		ID:                 uuid.New().String(),
		UserID:             userID,
		TokenHash:          digest,
		Browser:            info.Browser,
		OS:                 info.OS,
		DeviceType:         info.DeviceType,
		OriginIP:           ip,
		CurrentIP:          ip,
		CreatedAt:          now,
		LastActivityAt:     now,
		ExpiresAt:          now.Add(s.cfg.AbsoluteTTL),
		IdleTimeoutSeconds: int(s.cfg.IdleTimeout.Seconds()),
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "session_created",
		UserID:    userID,
		SessionID: session.ID,
		IPAddress: ip,
		Metadata: map[string]string{
			"browser":     info.Browser,
			"os":          info.OS,
			"device_type": info.DeviceType,
		},
	})

	return session, plainToken, nil
}

// TouchOutcome reports what validating a bearer token found.
type TouchOutcome struct {
	Live       bool
	SessionID  string
	UserID     string
	Suspicious bool
}

// Touch validates a bearer token and, when the session is live, slides its
// activity timestamp forward and records the observed IP. A dead, unknown or
// malformed token yields Live=false, not an error; the caller cannot tell
// which it was. The first observation from a new IP flags the session
// suspicious but never kills it.
func (s *SessionService) Touch(ctx context.Context, plainToken, ip string) (*TouchOutcome, error) {
	digest, err := s.tokens.Digest(plainToken)
	if err != nil {
		return &TouchOutcome{Live: false}, nil
	}

	res, err := s.store.Touch(ctx, digest, ip, s.clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &TouchOutcome{Live: false}, nil
		}
		return nil, err
	}

	if res.JustFlagged {
		s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
			EventType: "session_flagged_suspicious",
			UserID:    res.UserID,
			SessionID: res.SessionID,
			IPAddress: ip,
			Metadata:  map[string]string{"reason": models.SuspiciousReasonIPChanged},
		})
		if session, getErr := s.store.GetByID(ctx, res.SessionID); getErr == nil {
			if alertErr := s.alerts.SuspiciousSession(ctx, session); alertErr != nil {
				s.logger.Warn("suspicious session alert delivery failed", slog.Any("error", alertErr))
			}
		}
	}

	return &TouchOutcome{
		Live:       true,
		SessionID:  res.SessionID,
		UserID:     res.UserID,
		Suspicious: res.Suspicious,
	}, nil
}

// ListForUser returns the user's sessions as listing views, most recently
// active first. currentSessionID marks which entry the caller is using.
func (s *SessionService) ListForUser(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error) {
	sessions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, session.View(now, currentSessionID))
	}
	return views, nil
}

// Logout terminates the caller's own session. Idempotent.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.Terminate(ctx, sessionID, models.TerminationLogout, s.clock.Now()); err != nil {
		return err
	}

	s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "session_terminated",
		SessionID: sessionID,
		Metadata:  map[string]string{"reason": models.TerminationLogout},
	})
	return nil
}

// TerminateOwned terminates one of the caller's sessions by ID. A session
// that does not exist or belongs to another user reports models.ErrNotFound;
// the caller cannot distinguish the two. Terminating an already-terminated
// session succeeds.
func (s *SessionService) TerminateOwned(ctx context.Context, userID, sessionID string) error {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return models.ErrNotFound
	}

	if err := s.store.Terminate(ctx, sessionID, models.TerminationUserRevoked, s.clock.Now()); err != nil {
		return err
	}

	s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "session_terminated",
		UserID:    userID,
		SessionID: sessionID,
		Metadata:  map[string]string{"reason": models.TerminationUserRevoked},
	})
	return nil
}

// TerminateAllOthers terminates every live session of the user except the
// current one. Returns how many sessions were terminated.
func (s *SessionService) TerminateAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error) {
	terminated, err := s.store.TerminateAllForUser(ctx, userID, currentSessionID, models.TerminationUserRevoked, s.clock.Now())
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "sessions_terminated_others",
		UserID:    userID,
		SessionID: currentSessionID,
		Metadata:  map[string]string{"terminated": strconv.FormatInt(terminated, 10)},
	})
	return terminated, nil
}

// AdminTerminate terminates any session by ID on behalf of an administrator.
func (s *SessionService) AdminTerminate(ctx context.Context, sessionID, actorID string) error {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.store.Terminate(ctx, sessionID, models.TerminationAdminRevoked, s.clock.Now()); err != nil {
		return err
	}

	s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "session_terminated",
		UserID:    session.UserID,
		SessionID: sessionID,
		ActorID:   actorID,
		Metadata:  map[string]string{"reason": models.TerminationAdminRevoked},
	})
	return nil
}

// AdminTerminateUser terminates every live session of a user, for account
// compromise response.
func (s *SessionService) AdminTerminateUser(ctx context.Context, userID, actorID string) (int64, error) {
	terminated, err := s.store.TerminateAllForUser(ctx, userID, "", models.TerminationAdminRevoked, s.clock.Now())
	if err != nil {
		return 0, err
	}

	s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
		EventType: "sessions_terminated_all",
		UserID:    userID,
		ActorID:   actorID,
		Metadata:  map[string]string{"terminated": strconv.FormatInt(terminated, 10)},
	})
	return terminated, nil
}

// Sweep stamps passively expired sessions and purges terminated ones past
// the retention window. Run periodically by the background cleanup manager.
func (s *SessionService) Sweep(ctx context.Context) (stamped, purged int64, err error) {
	now := s.clock.Now()

	stamped, err = s.store.SweepExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	purged, err = s.store.DeleteTerminatedBefore(ctx, now.Add(-s.cfg.Retention))
	if err != nil {
		return stamped, 0, err
	}

	return stamped, purged, nil
}
