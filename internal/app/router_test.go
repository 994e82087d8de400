package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell-cms/inkwell/internal/app"
	"github.com/inkwell-cms/inkwell/internal/articles"
	"github.com/inkwell-cms/inkwell/internal/auth"
	"github.com/inkwell-cms/inkwell/internal/dashboard"
	"github.com/inkwell-cms/inkwell/internal/observability"
	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/view"
	"github.com/inkwell-cms/inkwell/jobs"
	_ "github.com/inkwell-cms/inkwell/testing"
)

type authRepo struct {
	users map[string]*auth.User
}

func (r authRepo) FindActiveByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r authRepo) TouchLastAccess(ctx context.Context, userID int64) error { return nil }

type userCounter struct{}

func (userCounter) CountByRole(ctx context.Context) (map[roles.Role]int, error) {
	return map[roles.Role]int{roles.RoleSuperUser: 1, roles.RoleAdministrator: 2, roles.RoleAuthor: 5}, nil
}

type articleSource struct{}

func (articleSource) CountAll(ctx context.Context) (int, error) { return 7, nil }

func (articleSource) CountByAuthor(ctx context.Context, id int64) (int, error) { return 3, nil }

func (articleSource) Latest(ctx context.Context) ([]articles.Article, error) { return nil, nil }

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type appFixture struct {
	handler http.Handler
	cookie  string
}

func newAppFixture(t *testing.T, checks map[string]app.HealthChecker) *appFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, shared.SessionConfig{CookieName: "inkwell_session", Secret: "secret"})
	csrf := shared.NewCSRFManager("csrf")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := authRepo{users: map[string]*auth.User{
		"superadmin": {ID: 1, Username: "superadmin", FullName: "Root Admin", PasswordHash: string(hash), Role: roles.RoleSuperUser, IsActive: true},
	}}

	metrics := observability.NewMetrics()
	guard := rbac.Middleware{Metrics: metrics}
	authHandler := auth.NewHandler(nil, auth.NewService(repo, nil, metrics), templates, sessions, csrf, nil)
	dashboardHandler := dashboard.NewHandler(nil, dashboard.NewService(userCounter{}, articleSource{}), templates, csrf, guard)

	handler := app.NewRouter(app.RouterParams{
		Templates:        templates,
		SessionManager:   sessions,
		CSRFManager:      csrf,
		Guard:            guard,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobs.NewHandler(nil, nil),
		Metrics:          metrics,
		Checks:           checks,
	})
	return &appFixture{handler: handler}
}

func (f *appFixture) do(req *http.Request) *httptest.ResponseRecorder {
	if f.cookie != "" {
		req.AddCookie(&http.Cookie{Name: "inkwell_session", Value: f.cookie})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "inkwell_session" {
			f.cookie = c.Value
		}
	}
	return rec
}

func (f *appFixture) get(path string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (f *appFixture) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func TestLoginFlowThroughMiddlewareStack(t *testing.T) {
	f := newAppFixture(t, nil)

	res := f.get("/")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login?error=login_required", res.Header().Get("Location"))

	res = f.get("/auth/login")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	match := csrfInput.FindStringSubmatch(res.Body.String())
	require.Len(t, match, 2)
	anonymous := f.cookie
	require.NotEmpty(t, anonymous)

	res = f.post("/auth/login", url.Values{"username": {"superadmin"}, "password": {"admin123"}})
	assert.Equal(t, http.StatusForbidden, res.Code, "missing csrf token")

	res = f.post("/auth/login", url.Values{"username": {"superadmin"}, "password": {"admin123"}, "csrf_token": {match[1]}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
	assert.NotEqual(t, anonymous, f.cookie, "login rotates the session token")

	res = f.get("/")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Welcome back, Root Admin!")
	assert.Contains(t, body, "Total Users")
	assert.Contains(t, body, "Total Articles")

	res = f.get("/jobs/health")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"failed":0}`, res.Body.String())
}

func TestJobsHealthRequiresSuperUser(t *testing.T) {
	f := newAppFixture(t, nil)
	res := f.get("/jobs/health")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login?error=login_required", res.Header().Get("Location"))
}

func TestHealthz(t *testing.T) {
	f := newAppFixture(t, map[string]app.HealthChecker{
		"postgres": func(r *http.Request) error { return nil },
	})
	res := f.get("/healthz")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok","postgres":"ok"}`, res.Body.String())

	f = newAppFixture(t, map[string]app.HealthChecker{
		"redis": func(r *http.Request) error { return errors.New("down") },
	})
	res = f.get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":"down"}`, res.Body.String())
}

func TestStaticMetricsAndNotFound(t *testing.T) {
	f := newAppFixture(t, nil)

	res := f.get("/static/css/app.css")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))

	f.get("/auth/login")
	res = f.get("/metrics")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "inkwell_http_requests_total")

	res = f.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "does not exist")

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set("Accept", "application/json")
	res = f.do(req)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "json")
}
