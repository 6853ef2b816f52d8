package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/services"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
)

// SessionToucher validates a bearer token and slides the session's activity
// window; satisfied by services.SessionService.
type SessionToucher interface {
	Touch(ctx context.Context, plainToken, ip string) (*services.TouchOutcome, error)
}

// SessionAuth validates the Bearer session token on every request. A live
// token slides the session's activity window as a side effect; a dead,
// unknown or malformed token gets an identical 401. Storage faults answer
// 503 rather than 401 so clients do not discard valid tokens during an
// outage.
func SessionAuth(sessions SessionToucher, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			ip := pkghttp.ExtractClientIP(r, ipConfig)
			outcome, err := sessions.Touch(r.Context(), parts[1], ip)
			if err != nil {
				pkghttp.WriteServiceUnavailable(w, "session validation is temporarily unavailable")
				return
			}
			if !outcome.Live {
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			principal := &auth.Principal{
				UserID:     outcome.UserID,
				SessionID:  outcome.SessionID,
				Suspicious: outcome.Suspicious,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}
