// Package rbac guards HTTP routes with the session's login state and the
// role hierarchy.
package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Reason codes appended to the login redirect.
const (
	ReasonSessionExpired = "session_expired"
	ReasonLoginRequired  = "login_required"
	ReasonAccessDenied   = "access_denied"
)

// DefaultLoginPath is where refused HTML requests are sent.
const DefaultLoginPath = "/auth/login"

// DenialRecorder counts refused requests.
type DenialRecorder interface {
	ObserveAccessDenied(required string)
	ObserveSessionExpired()
}

// Middleware wires session guards for HTTP handlers.
type Middleware struct {
	Logger    *slog.Logger
	Metrics   DenialRecorder
	LoginPath string
}

// RequireLogin lets the request through only for a live authenticated
// session. Passing the guard extends the session.
func (m Middleware) RequireLogin() func(http.Handler) http.Handler {
	return m.guard(roles.RoleUnknown)
}

// RequireRole lets the request through only when the session's role
// grants required.
func (m Middleware) RequireRole(required roles.Role) func(http.Handler) http.Handler {
	return m.guard(required)
}

func (m Middleware) guard(required roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			var err error
			if required == roles.RoleUnknown {
				err = sess.RequireLogin()
			} else {
				err = sess.RequireRole(required)
			}
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			m.refuse(w, r, required, err)
		})
	}
}

func (m Middleware) refuse(w http.ResponseWriter, r *http.Request, required roles.Role, err error) {
	reason := ReasonLoginRequired
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, shared.ErrSessionExpired):
		reason = ReasonSessionExpired
		if m.Metrics != nil {
			m.Metrics.ObserveSessionExpired()
		}
	case errors.Is(err, shared.ErrAccessDenied):
		reason = ReasonAccessDenied
		status = http.StatusForbidden
		if m.Metrics != nil {
			m.Metrics.ObserveAccessDenied(required.String())
		}
		if m.Logger != nil {
			attrs := []any{slog.String("path", r.URL.Path), slog.String("required", required.String())}
			if id := shared.IdentityFromContext(r.Context()); id != nil {
				attrs = append(attrs, slog.Int64("user_id", id.UserID), slog.String("role", id.Role.String()))
			}
			m.Logger.Warn("access denied", attrs...)
		}
	}

	if httpx.WantsJSON(r) {
		httpx.ProblemWithCode(w, status, http.StatusText(status), shared.UserSafeMessage(err), reason)
		return
	}
	http.Redirect(w, r, m.loginURL(reason), http.StatusSeeOther)
}

func (m Middleware) loginURL(reason string) string {
	path := m.LoginPath
	if path == "" {
		path = DefaultLoginPath
	}
	return path + "?" + url.Values{"error": {reason}}.Encode()
}
