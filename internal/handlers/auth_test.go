package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/models"
	"github.com/ticketwell/authcore/internal/services"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
)

func loginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.0.2.10:54321"
	return req
}

func withPrincipal(r *http.Request, p *auth.Principal) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

func TestAuthHandler_LoginSuccess(t *testing.T) {
	mock := &MockLoginOrchestrator{
		AttemptLoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error) {
			assert.Equal(t, "agent@ticketwell.io", email)
			assert.Equal(t, "192.0.2.10", ip)
			assert.Equal(t, "test-agent", userAgent)
			return &services.LoginOutcome{
				Status: services.LoginSuccess,
				Token:  "dsk_testtoken",
				User:   &models.User{ID: "user-1", Email: email, Name: "Agent", Role: "agent"},
				Session: &models.Session{
					ID: "session-1",
				},
			}, nil
		},
	}
	h := NewAuthHandler(mock, &MockSessionTerminator{}, &pkghttp.IPConfig{})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(`{"email":"agent@ticketwell.io","password":"secret"}`))

	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "dsk_testtoken", resp.Token)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Equal(t, "user-1", resp.User.ID)
}

func TestAuthHandler_LoginInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&MockLoginOrchestrator{}, &MockSessionTerminator{}, &pkghttp.IPConfig{})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(`{"email":"agent@ticketwell.io","password":"wrong"}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication failed")
}

func TestAuthHandler_LoginLockedOut(t *testing.T) {
	mock := &MockLoginOrchestrator{
		AttemptLoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error) {
			return &services.LoginOutcome{Status: services.LoginLockedOut, RetryAfterSeconds: 540}, nil
		},
	}
	h := NewAuthHandler(mock, &MockSessionTerminator{}, &pkghttp.IPConfig{})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(`{"email":"agent@ticketwell.io","password":"secret"}`))

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, "540", w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(540), body["retry_after_seconds"])
}

func TestAuthHandler_LoginStorageUnavailable(t *testing.T) {
	mock := &MockLoginOrchestrator{
		AttemptLoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error) {
			return nil, models.ErrStorageUnavailable
		},
	}
	h := NewAuthHandler(mock, &MockSessionTerminator{}, &pkghttp.IPConfig{})

	w := httptest.NewRecorder()
	h.Login(w, loginRequest(`{"email":"agent@ticketwell.io","password":"secret"}`))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	h := NewAuthHandler(&MockLoginOrchestrator{
		AttemptLoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginOutcome, error) {
			t.Fatal("the orchestrator must not be reached for invalid requests")
			return nil, nil
		},
	}, &MockSessionTerminator{}, &pkghttp.IPConfig{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"not json", `not-json`},
		{"missing password", `{"email":"agent@ticketwell.io"}`},
		{"malformed email", `{"email":"not-an-email","password":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Login(w, loginRequest(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var loggedOut string
	h := NewAuthHandler(&MockLoginOrchestrator{}, &MockSessionTerminator{
		LogoutFunc: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}, &pkghttp.IPConfig{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = withPrincipal(req, &auth.Principal{UserID: "user-1", SessionID: "session-1"})

	w := httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "session-1", loggedOut)
}

func TestAuthHandler_LogoutWithoutPrincipal(t *testing.T) {
	h := NewAuthHandler(&MockLoginOrchestrator{}, &MockSessionTerminator{}, &pkghttp.IPConfig{})

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
