package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
	_ "github.com/inkwell-cms/inkwell/testing"
)

type recorder struct {
	denied  []string
	expired int
}

func (r *recorder) ObserveAccessDenied(required string) { r.denied = append(r.denied, required) }
func (r *recorder) ObserveSessionExpired()              { r.expired++ }

type harness struct {
	sm    *shared.SessionManager
	now   time.Time
	stats *recorder
	mw    rbac.Middleware
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h := &harness{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), stats: &recorder{}}
	h.sm = shared.NewSessionManager(client, shared.SessionConfig{Timeout: time.Hour, TTL: 24 * time.Hour})
	h.sm.SetClock(func() time.Time { return h.now })
	h.mw = rbac.Middleware{Metrics: h.stats}
	return h
}

func (h *harness) session(t *testing.T, role roles.Role) *shared.Session {
	t.Helper()
	sess, err := h.sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	if role != roles.RoleUnknown {
		sess.Login(shared.Identity{UserID: 3, Username: "user", Role: role})
	}
	return sess
}

func serve(guard func(http.Handler) http.Handler, sess *shared.Session, accept string) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, called
}

func TestRequireLoginRedirectsAnonymous(t *testing.T) {
	h := newHarness(t)
	rr, called := serve(h.mw.RequireLogin(), h.session(t, roles.RoleUnknown), "")

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login?error=login_required", rr.Header().Get("Location"))
}

func TestRequireLoginRedirectsExpiredSession(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, roles.RoleAuthor)
	h.now = h.now.Add(time.Hour + time.Second)

	rr, called := serve(h.mw.RequireLogin(), sess, "")

	assert.False(t, called)
	assert.Equal(t, "/auth/login?error=session_expired", rr.Header().Get("Location"))
	assert.Equal(t, 1, h.stats.expired)
	assert.False(t, sess.IsAuthenticated())
}

func TestRequireLoginExtendsSession(t *testing.T) {
	h := newHarness(t)
	sess := h.session(t, roles.RoleAuthor)
	h.now = h.now.Add(59 * time.Minute)

	rr, called := serve(h.mw.RequireLogin(), sess, "")

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, h.now, sess.LastActivityAt())
}

func TestRequireRoleHierarchy(t *testing.T) {
	cases := []struct {
		actor    roles.Role
		required roles.Role
		allowed  bool
	}{
		{roles.RoleSuperUser, roles.RoleSuperUser, true},
		{roles.RoleSuperUser, roles.RoleAuthor, true},
		{roles.RoleAdministrator, roles.RoleSuperUser, false},
		{roles.RoleAdministrator, roles.RoleAuthor, true},
		{roles.RoleAuthor, roles.RoleAdministrator, false},
		{roles.RoleAuthor, roles.RoleAuthor, true},
	}
	for _, tc := range cases {
		t.Run(tc.actor.String()+"->"+tc.required.String(), func(t *testing.T) {
			h := newHarness(t)
			rr, called := serve(h.mw.RequireRole(tc.required), h.session(t, tc.actor), "")
			assert.Equal(t, tc.allowed, called)
			if !tc.allowed {
				assert.Equal(t, "/auth/login?error=access_denied", rr.Header().Get("Location"))
				assert.Equal(t, []string{tc.required.String()}, h.stats.denied)
			}
		})
	}
}

func TestRequireRoleAnswersJSONClients(t *testing.T) {
	h := newHarness(t)
	rr, called := serve(h.mw.RequireRole(roles.RoleAdministrator), h.session(t, roles.RoleAuthor), "application/json")

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	var body httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, rbac.ReasonAccessDenied, body.Code)

	rr, _ = serve(h.mw.RequireRole(roles.RoleAuthor), h.session(t, roles.RoleUnknown), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGuardWithoutSessionFailsClosed(t *testing.T) {
	mw := rbac.Middleware{LoginPath: "/login"}
	rr, called := serve(mw.RequireRole(roles.RoleAuthor), nil, "")
	assert.False(t, called)
	assert.Equal(t, "/login?error=login_required", rr.Header().Get("Location"))
}
