package handlers

import (
	"context"

	"github.com/ticketwell/authcore/internal/models"
	"github.com/ticketwell/authcore/internal/services"
)

// MockLoginOrchestrator implements LoginOrchestrator for testing
type MockLoginOrchestrator struct {
	AttemptLoginFunc func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error)
}

func (m *MockLoginOrchestrator) AttemptLogin(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error) {
	if m.AttemptLoginFunc != nil {
		return m.AttemptLoginFunc(ctx, email, password, ip, userAgent)
	}
	return &services.LoginOutcome{Status: services.LoginInvalidCredentials}, nil
}

// MockSessionTerminator implements SessionTerminator for testing
type MockSessionTerminator struct {
	LogoutFunc func(ctx context.Context, sessionID string) error
}

func (m *MockSessionTerminator) Logout(ctx context.Context, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionID)
	}
	return nil
}

// MockSessionRegistry implements SessionRegistry for testing
type MockSessionRegistry struct {
	ListForUserFunc        func(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error)
	TerminateOwnedFunc     func(ctx context.Context, userID, sessionID string) error
	TerminateAllOthersFunc func(ctx context.Context, userID, currentSessionID string) (int64, error)
}

func (m *MockSessionRegistry) ListForUser(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID, currentSessionID)
	}
	return []models.SessionView{}, nil
}

func (m *MockSessionRegistry) TerminateOwned(ctx context.Context, userID, sessionID string) error {
	if m.TerminateOwnedFunc != nil {
		return m.TerminateOwnedFunc(ctx, userID, sessionID)
	}
	return nil
}

func (m *MockSessionRegistry) TerminateAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error) {
	if m.TerminateAllOthersFunc != nil {
		return m.TerminateAllOthersFunc(ctx, userID, currentSessionID)
	}
	return 0, nil
}

// MockLockoutAdmin implements LockoutAdmin for testing
type MockLockoutAdmin struct {
	ListFunc     func(ctx context.Context, kind models.SubjectKind, status string, limit, offset int) ([]*models.LockoutRecord, error)
	UnlockFunc   func(ctx context.Context, kind models.SubjectKind, key, actorID string) error
	ClearAllFunc func(ctx context.Context, kind models.SubjectKind, actorID string) (int64, error)
	StatsFunc    func(ctx context.Context, kind models.SubjectKind) (*models.LockoutStats, error)
}

func (m *MockLockoutAdmin) List(ctx context.Context, kind models.SubjectKind, status string, limit, offset int) ([]*models.LockoutRecord, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, kind, status, limit, offset)
	}
	return []*models.LockoutRecord{}, nil
}

func (m *MockLockoutAdmin) Unlock(ctx context.Context, kind models.SubjectKind, key, actorID string) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, kind, key, actorID)
	}
	return nil
}

func (m *MockLockoutAdmin) ClearAll(ctx context.Context, kind models.SubjectKind, actorID string) (int64, error) {
	if m.ClearAllFunc != nil {
		return m.ClearAllFunc(ctx, kind, actorID)
	}
	return 0, nil
}

func (m *MockLockoutAdmin) Stats(ctx context.Context, kind models.SubjectKind) (*models.LockoutStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, kind)
	}
	return &models.LockoutStats{}, nil
}

// MockSessionAdmin implements SessionAdmin for testing
type MockSessionAdmin struct {
	AdminTerminateFunc     func(ctx context.Context, sessionID, actorID string) error
	AdminTerminateUserFunc func(ctx context.Context, userID, actorID string) (int64, error)
}

func (m *MockSessionAdmin) AdminTerminate(ctx context.Context, sessionID, actorID string) error {
	if m.AdminTerminateFunc != nil {
		return m.AdminTerminateFunc(ctx, sessionID, actorID)
	}
	return nil
}

func (m *MockSessionAdmin) AdminTerminateUser(ctx context.Context, userID, actorID string) (int64, error) {
	if m.AdminTerminateUserFunc != nil {
		return m.AdminTerminateUserFunc(ctx, userID, actorID)
	}
	return 0, nil
}
