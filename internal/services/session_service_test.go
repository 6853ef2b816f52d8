package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/models"
)

const chromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestSessionService(store SessionStore, clock Clock, alerts AlertService) *SessionService {
	return NewSessionService(store, auth.NewSessionTokenManager(), testSessionConfig(), clock, discardLogger(), discardAuditLogger(), alerts)
}

func TestSessionService_CreateAndTouch(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	session, token, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, "Chrome", session.Browser)
	assert.Equal(t, "Windows", session.OS)
	assert.Equal(t, "desktop", session.DeviceType)
	assert.Equal(t, "192.0.2.10", session.OriginIP)
	assert.Equal(t, clock.Now().Add(8*time.Hour), session.ExpiresAt)
	assert.Contains(t, token, "dsk_")
	assert.NotContains(t, session.TokenHash, token, "plaintext token must not be stored")

	clock.Advance(10 * time.Minute)

	outcome, err := svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, outcome.Live)
	assert.Equal(t, session.ID, outcome.SessionID)
	assert.Equal(t, "user-1", outcome.UserID)
	assert.False(t, outcome.Suspicious)

	stored, err := svc.store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), stored.LastActivityAt, "activity timestamp slides on touch")
}

func TestSessionService_TouchUnknownOrMalformedToken(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	for _, token := range []string{
		"",
		"not-a-token",
		"dsk_tooshort",
		"dsk_" + "0000000000000000000000000000000000000000000000000000000000000000",
	} {
		outcome, err := svc.Touch(ctx, token, "192.0.2.10")
		require.NoError(t, err)
		assert.False(t, outcome.Live, "token %q", token)
	}
}

func TestSessionService_IdleExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	_, token, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	// Activity 1700s in keeps the session alive and slides the window.
	clock.Advance(1700 * time.Second)
	outcome, err := svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, outcome.Live)

	// Another 1700s gap is again within the 1800s idle timeout.
	clock.Advance(1700 * time.Second)
	outcome, err = svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, outcome.Live)

	// A 1900s gap exceeds it; the session is dead and stays dead.
	clock.Advance(1900 * time.Second)
	outcome, err = svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.False(t, outcome.Live)

	clock.Advance(time.Second)
	outcome, err = svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.False(t, outcome.Live, "an expired session cannot be revived by touching it")
}

func TestSessionService_AbsoluteDeadline(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	_, token, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	// Touch every 10 minutes; constant activity never extends the 8h cap.
	for i := 0; i < 47; i++ {
		clock.Advance(10 * time.Minute)
		outcome, err := svc.Touch(ctx, token, "192.0.2.10")
		require.NoError(t, err)
		require.True(t, outcome.Live, "still inside the absolute deadline at %s", clock.Now())
	}

	clock.Advance(11 * time.Minute)
	outcome, err := svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.False(t, outcome.Live)
}

func TestSessionService_TouchFlagsSuspiciousOnIPChange(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	alerts := &recordingAlerts{}
	svc := newTestSessionService(newMemSessionStore(), clock, alerts)
	ctx := context.Background()

	session, token, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	outcome, err := svc.Touch(ctx, token, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, outcome.Live, "flagging is advisory; the session stays live")
	assert.True(t, outcome.Suspicious)
	assert.Equal(t, 1, alerts.suspiciousSessions)

	stored, err := svc.store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", stored.OriginIP, "origin IP never changes")
	assert.Equal(t, "198.51.100.7", stored.CurrentIP)
	require.NotNil(t, stored.SuspiciousReason)
	assert.Equal(t, models.SuspiciousReasonIPChanged, *stored.SuspiciousReason)

	// Further IP changes keep the flag but do not re-alert.
	clock.Advance(time.Minute)
	outcome, err = svc.Touch(ctx, token, "203.0.113.4")
	require.NoError(t, err)
	assert.True(t, outcome.Suspicious)
	assert.Equal(t, 1, alerts.suspiciousSessions)
}

func TestSessionService_TerminationWinsOverTouch(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	session, token, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.ID))

	outcome, err := svc.Touch(ctx, token, "192.0.2.10")
	require.NoError(t, err)
	assert.False(t, outcome.Live, "a terminated session never validates again")
}

func TestSessionService_TerminateIdempotent(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	session, _, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.ID))
	first, err := svc.store.GetByID(ctx, session.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, svc.TerminateOwned(ctx, "user-1", session.ID), "repeat termination succeeds")

	second, err := svc.store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TerminatedAt, second.TerminatedAt, "original termination timestamp is kept")
	assert.Equal(t, first.TerminatedReason, second.TerminatedReason)
}

func TestSessionService_TerminateOwnedHidesForeignSessions(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	session, _, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	err = svc.TerminateOwned(ctx, "user-2", session.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "foreign sessions look like missing ones")

	err = svc.TerminateOwned(ctx, "user-1", "11111111-1111-1111-1111-111111111111")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionService_TerminateAllOthers(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	current, currentToken, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)
	_, otherToken1, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.11")
	require.NoError(t, err)
	_, otherToken2, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.12")
	require.NoError(t, err)
	_, foreignToken, err := svc.Create(ctx, "user-2", chromeOnWindows, "192.0.2.13")
	require.NoError(t, err)

	terminated, err := svc.TerminateAllOthers(ctx, "user-1", current.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), terminated)

	for _, tc := range []struct {
		token string
		live  bool
	}{
		{currentToken, true},
		{otherToken1, false},
		{otherToken2, false},
		{foreignToken, true},
	} {
		outcome, err := svc.Touch(ctx, tc.token, "192.0.2.99")
		require.NoError(t, err)
		assert.Equal(t, tc.live, outcome.Live)
	}
}

func TestSessionService_AdminTerminateUser(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	s1, _, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.11")
	require.NoError(t, err)

	terminated, err := svc.AdminTerminateUser(ctx, "user-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), terminated)

	stored, err := svc.store.GetByID(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TerminatedReason)
	assert.Equal(t, models.TerminationAdminRevoked, *stored.TerminatedReason)
}

func TestSessionService_ListForUserDerivedFields(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	old, _, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	current, _, err := svc.Create(ctx, "user-1", "curl/8.5.0", "192.0.2.11")
	require.NoError(t, err)

	views, err := svc.ListForUser(ctx, "user-1", current.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	// Most recently active first.
	assert.Equal(t, current.ID, views[0].ID)
	assert.True(t, views[0].Current)
	assert.True(t, views[0].Live)
	assert.Equal(t, int64(0), views[0].AgeSeconds)
	assert.Equal(t, int64(30*60), views[0].RemainingSeconds, "idle timeout is the nearer deadline")

	assert.Equal(t, old.ID, views[1].ID)
	assert.False(t, views[1].Current)
	assert.True(t, views[1].Live)
	assert.Equal(t, int64(20*60), views[1].AgeSeconds)
	assert.Equal(t, int64(20*60), views[1].InactiveSeconds)
	assert.Equal(t, int64(10*60), views[1].RemainingSeconds)

	// Past the idle timeout the listing reports the session dead without any
	// write having happened.
	clock.Advance(31 * time.Minute)
	views, err = svc.ListForUser(ctx, "user-1", current.ID)
	require.NoError(t, err)
	assert.False(t, views[0].Live)
	assert.False(t, views[1].Live)
	assert.Equal(t, int64(0), views[0].RemainingSeconds)
}

func TestSessionService_Sweep(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestSessionService(newMemSessionStore(), clock, nil)
	ctx := context.Background()

	idle, _, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.10")
	require.NoError(t, err)
	loggedOut, _, err := svc.Create(ctx, "user-1", chromeOnWindows, "192.0.2.11")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, loggedOut.ID))

	clock.Advance(time.Hour)
	stamped, purged, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stamped, "the idle session gets the expired stamp")
	assert.Equal(t, int64(0), purged)

	stored, err := svc.store.GetByID(ctx, idle.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TerminatedReason)
	assert.Equal(t, models.TerminationExpired, *stored.TerminatedReason)

	// Past the retention window both terminated sessions are purged.
	clock.Advance(31 * 24 * time.Hour)
	_, purged, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	_, err = svc.store.GetByID(ctx, idle.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
