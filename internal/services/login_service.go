package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/models"
	pkgauth "github.com/ticketwell/authcore/pkg/auth"
	pkglogger "github.com/ticketwell/authcore/pkg/logger"
)

// UserStore defines the account lookup the login orchestrator needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Login outcome statuses. The HTTP layer maps these to status codes; the
// service never shapes responses itself.
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginLockedOut          = "locked_out"
)

// LoginOutcome is the result of one login attempt.
type LoginOutcome struct {
	Status            string
	RetryAfterSeconds int // set when Status is LoginLockedOut
	User              *models.User
	Session           *models.Session
	Token             string
}

// LoginService orchestrates authentication: lock checks first, credential
// verification second, then counter bookkeeping and session issuance.
// Failures against unknown accounts and wrong passwords are indistinguishable
// to the caller, in both response and (approximate) timing.
type LoginService struct {
	users       UserStore
	lockouts    *LockoutService
	sessions    *SessionService
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	// dummyHash is compared against when the account does not exist, so the
	// bcrypt cost is paid on that path too.
	dummyHash string
}

// NewLoginService creates a new LoginService
func NewLoginService(users UserStore, lockouts *LockoutService, sessions *SessionService, timing *auth.TimingDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LoginService {
	dummyHash, err := pkgauth.HashPassword(uuid.New().String())
	if err != nil {
		// crypto/rand failure; bcrypt without a hash to compare against
		// degrades timing resistance but never correctness.
		dummyHash = ""
	}

	return &LoginService{
		users:       users,
		lockouts:    lockouts,
		sessions:    sessions,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		dummyHash:   dummyHash,
	}
}

// AttemptLogin runs one login attempt from a given source IP. Lock checks
// happen before any credential work: a locked subject never reaches bcrypt,
// so locked attempts cannot probe passwords. Storage faults abort the
// attempt without recording anything; an error return means the caller
// should report the service unavailable, not reject the credentials.
func (s *LoginService) AttemptLogin(ctx context.Context, email, password, ip, userAgent string) (*LoginOutcome, error) {
	start := s.now()
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("login aborted: user lookup failed", slog.Any("error", err))
		return nil, err
	}
	userKnown := err == nil

	// Lock checks precede credential verification for both subjects. The
	// account subject is only checkable when the account exists; unknown
	// accounts are guarded by the IP counter alone.
	ipStatus, err := s.lockouts.IsLocked(ctx, models.SubjectIP, ip)
	if err != nil {
		s.logger.Error("login aborted: ip lock check failed", slog.Any("error", err))
		return nil, err
	}

	var accountStatus LockStatus
	if userKnown {
		accountStatus, err = s.lockouts.IsLocked(ctx, models.SubjectAccount, user.ID)
		if err != nil {
			s.logger.Error("login aborted: account lock check failed", slog.Any("error", err))
			return nil, err
		}
	}

	if ipStatus.Locked || accountStatus.Locked {
		retry := ipStatus.RemainingSeconds
		if accountStatus.RemainingSeconds > retry {
			retry = accountStatus.RemainingSeconds
		}
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			IPAddress:     ip,
			UserAgent:     userAgent,
			FailureReason: "locked_out",
			Success:       false,
		})
		return &LoginOutcome{Status: LoginLockedOut, RetryAfterSeconds: retry}, nil
	}

	// Verify credentials. Unknown accounts burn a bcrypt compare against the
	// dummy hash so the miss is not observably faster than a wrong password.
	var credentialsOK bool
	if userKnown {
		credentialsOK = pkgauth.ComparePassword(user.PasswordHash, password) == nil
	} else {
		_ = pkgauth.ComparePassword(s.dummyHash, password)
	}

	if !credentialsOK {
		if !userKnown {
			s.logger.Info("login failed for unknown account",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.String("ip", ip))
		}
		outcome, err := s.recordFailure(ctx, user, userKnown, ip, userAgent)
		if err != nil {
			return nil, err
		}
		s.timing.WaitFrom(start, false)
		return outcome, nil
	}

	if user.Status != "active" {
		s.logger.Info("login blocked: account not active",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ip,
			FailureReason: "account_inactive",
			Success:       false,
		})
		s.timing.WaitFrom(start, false)
		return &LoginOutcome{Status: LoginInvalidCredentials}, nil
	}

	// Success converges both counters back to zero before the session is
	// issued; a reset failure is a storage fault and aborts the attempt.
	if err := s.lockouts.RecordSuccess(ctx, models.SubjectAccount, user.ID); err != nil {
		s.logger.Error("login aborted: account counter reset failed", slog.Any("error", err))
		return nil, err
	}
	if err := s.lockouts.RecordSuccess(ctx, models.SubjectIP, ip); err != nil {
		s.logger.Error("login aborted: ip counter reset failed", slog.Any("error", err))
		return nil, err
	}

	session, token, err := s.sessions.Create(ctx, user.ID, userAgent, ip)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		SessionID: session.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})

	return &LoginOutcome{
		Status:  LoginSuccess,
		User:    user,
		Session: session,
		Token:   token,
	}, nil
}

// recordFailure books one failed attempt against both subjects: always the
// source IP, and additionally the account when it exists. If this failure
// crosses a threshold the outcome flips to locked out immediately rather
// than on the next request.
func (s *LoginService) recordFailure(ctx context.Context, user *models.User, userKnown bool, ip, userAgent string) (*LoginOutcome, error) {
	failContext := "login:" + ip

	ipResult, err := s.lockouts.RecordFailure(ctx, models.SubjectIP, ip, failContext)
	if err != nil {
		s.logger.Error("login aborted: ip failure record failed", slog.Any("error", err))
		return nil, err
	}

	var accountResult *FailureResult
	if userKnown {
		accountResult, err = s.lockouts.RecordFailure(ctx, models.SubjectAccount, user.ID, failContext)
		if err != nil {
			s.logger.Error("login aborted: account failure record failed", slog.Any("error", err))
			return nil, err
		}
	}

	event := pkglogger.AuditEvent{
		EventType:     "login_failed",
		IPAddress:     ip,
		UserAgent:     userAgent,
		FailureReason: "invalid_credentials",
		Success:       false,
	}
	if userKnown {
		event.UserID = user.ID
	}
	s.auditLogger.LogAuthAttempt(event)

	now := s.now()
	retry := 0
	if ipResult.LockEngaged && ipResult.LockedUntil != nil {
		retry = int(ipResult.LockedUntil.Sub(now).Seconds())
	}
	if accountResult != nil && accountResult.LockEngaged && accountResult.LockedUntil != nil {
		if r := int(accountResult.LockedUntil.Sub(now).Seconds()); r > retry {
			retry = r
		}
	}

	if retry > 0 {
		return &LoginOutcome{Status: LoginLockedOut, RetryAfterSeconds: retry}, nil
	}
	return &LoginOutcome{Status: LoginInvalidCredentials}, nil
}

func (s *LoginService) now() time.Time {
	return s.lockouts.clock.Now()
}
