package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/config"
	"github.com/ticketwell/authcore/internal/database"
	"github.com/ticketwell/authcore/internal/handlers"
	middlewareCustom "github.com/ticketwell/authcore/internal/middleware"
	"github.com/ticketwell/authcore/internal/repositories"
	"github.com/ticketwell/authcore/internal/routes"
	"github.com/ticketwell/authcore/internal/services"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
	pkglogger "github.com/ticketwell/authcore/pkg/logger"
)

// TestServer wraps httptest.Server with the full service stack on a real
// database. Timing delays are zeroed so failure-path tests don't stack
// hundreds of milliseconds per attempt.
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Config *config.Config

	Lockouts *services.LockoutService
	Sessions *services.SessionService
}

// NewTestServer wires repositories, services, handlers and routes the same
// way cmd/api does, minus the sweeper and alerting.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Lockout: config.LockoutConfig{
			Account: config.LockoutPolicy{
				MaxAttempts:     5,
				LockoutDuration: 15 * time.Minute,
			},
			IP: config.LockoutPolicy{
				MaxAttempts:     20,
				LockoutDuration: 15 * time.Minute,
				AttemptWindow:   1 * time.Hour,
			},
		},
		Session: config.SessionConfig{
			IdleTimeout:   30 * time.Minute,
			AbsoluteTTL:   8 * time.Hour,
			SweepInterval: 5 * time.Minute,
			Retention:     30 * 24 * time.Hour,
		},
		Server: config.ServerConfig{
			Env:            "test",
			TrustedProxies: []string{},
		},
	}

	userRepo := repositories.NewUserRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	clock := services.SystemClock{}
	tokenManager := auth.NewSessionTokenManager()

	lockoutService := services.NewLockoutService(lockoutRepo, cfg.Lockout, clock, logger, auditLogger, nil)
	sessionService := services.NewSessionService(sessionRepo, tokenManager, cfg.Session, clock, logger, auditLogger, nil)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})
	loginService := services.NewLoginService(userRepo, lockoutService, sessionService, timingDelay, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	authHandler := handlers.NewAuthHandler(loginService, sessionService, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	adminHandler := handlers.NewAdminHandler(lockoutService, sessionService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, sessionHandler, adminHandler, sessionService, userRepo, ipConfig)

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Config:   cfg,
		Lockouts: lockoutService,
		Sessions: sessionService,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithToken makes an HTTP request carrying a session bearer token
func (ts *TestServer) RequestWithToken(method, path, token string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// Login posts credentials and returns the raw response
func (ts *TestServer) Login(email, password string) (*http.Response, error) {
	return ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts the error message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
