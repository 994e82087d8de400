package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
	_ "github.com/inkwell-cms/inkwell/testing"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newSessionManager(t *testing.T) (*shared.SessionManager, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := shared.NewSessionManager(client, shared.SessionConfig{
		CookieName: "test_session",
		Secret:     "secret",
		Timeout:    3600 * time.Second,
		TTL:        24 * time.Hour,
	})
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	sm.SetClock(clock.Now)
	return sm, clock, mr
}

func authorIdentity() shared.Identity {
	return shared.Identity{UserID: 7, Username: "author1", DisplayName: "Author One", Role: roles.RoleAuthor, Email: "author1@example.com"}
}

func loadSession(t *testing.T, sm *shared.SessionManager, cookies ...*http.Cookie) *shared.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func commitSession(t *testing.T, sm *shared.SessionManager, sess *shared.Session) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.CookieName() {
			return c
		}
	}
	t.Fatalf("no session cookie written")
	return nil
}

func TestAnonymousSessionIsNeverAuthorized(t *testing.T) {
	sm, _, _ := newSessionManager(t)
	sess := loadSession(t, sm)

	assert.False(t, sess.IsAuthenticated())
	_, ok := sess.CurrentRole()
	assert.False(t, ok)
	for _, r := range roles.All() {
		assert.False(t, sess.Authorize(r))
	}
	assert.ErrorIs(t, sess.RequireLogin(), shared.ErrUnauthenticated)
	assert.ErrorIs(t, sess.RequireRole(roles.RoleSuperUser), shared.ErrUnauthenticated)
}

func TestLoginCapturesIdentity(t *testing.T) {
	sm, clock, _ := newSessionManager(t)
	sess := loadSession(t, sm)

	sess.Login(authorIdentity())

	require.True(t, sess.IsAuthenticated())
	role, ok := sess.CurrentRole()
	require.True(t, ok)
	assert.Equal(t, roles.RoleAuthor, role)
	assert.Equal(t, clock.Now(), sess.IssuedAt())
	assert.Equal(t, clock.Now(), sess.LastActivityAt())
	assert.Equal(t, "author1", sess.Identity().Username)
}

func TestSlidingExpirationKeepsActiveSession(t *testing.T) {
	sm, clock, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())
	issued := sess.IssuedAt()

	clock.Advance(3599 * time.Second)
	require.NoError(t, sess.RequireLogin())
	assert.Equal(t, clock.Now(), sess.LastActivityAt())
	assert.Equal(t, issued, sess.IssuedAt())

	// The window restarts from the refreshed activity time.
	clock.Advance(3599 * time.Second)
	require.NoError(t, sess.RequireLogin())
	assert.True(t, sess.IsAuthenticated())
}

func TestSessionExpiresAfterTimeout(t *testing.T) {
	sm, clock, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())

	clock.Advance(3601 * time.Second)
	assert.False(t, sess.IsAuthenticated())
	assert.ErrorIs(t, sess.RequireLogin(), shared.ErrSessionExpired)
	assert.Nil(t, sess.Identity())

	// Once expired the session is plain anonymous.
	assert.ErrorIs(t, sess.RequireLogin(), shared.ErrUnauthenticated)
}

func TestLastActivityNeverMovesBackwards(t *testing.T) {
	sm, clock, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())
	clock.Advance(10 * time.Minute)
	require.NoError(t, sess.RequireLogin())
	touched := sess.LastActivityAt()

	clock.Advance(-5 * time.Minute)
	require.NoError(t, sess.RequireLogin())
	assert.Equal(t, touched, sess.LastActivityAt())
}

func TestRequireRoleHierarchy(t *testing.T) {
	sm, _, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())

	assert.ErrorIs(t, sess.RequireRole(roles.RoleAdministrator), shared.ErrAccessDenied)
	assert.ErrorIs(t, sess.RequireRole(roles.RoleSuperUser), shared.ErrAccessDenied)
	assert.NoError(t, sess.RequireRole(roles.RoleAuthor))
	assert.ErrorIs(t, sess.RequireRole(roles.RoleUnknown), shared.ErrAccessDenied)

	admin := authorIdentity()
	admin.Role = roles.RoleAdministrator
	sess.Login(admin)
	assert.NoError(t, sess.RequireRole(roles.RoleAuthor))
	assert.NoError(t, sess.RequireRole(roles.RoleAdministrator))
	assert.ErrorIs(t, sess.RequireRole(roles.RoleSuperUser), shared.ErrAccessDenied)
}

func TestTakeFlashIsReadOnce(t *testing.T) {
	sm, _, _ := newSessionManager(t)
	sess := loadSession(t, sm)

	sess.SetFlash("Article created successfully!", shared.FlashSuccess)

	msg := sess.TakeFlash()
	require.NotNil(t, msg)
	assert.Equal(t, "Article created successfully!", msg.Message)
	assert.Equal(t, shared.FlashSuccess, msg.Kind)
	assert.Nil(t, sess.TakeFlash())
}

func TestSetFlashNormalisesSeverity(t *testing.T) {
	sm, _, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.SetFlash("hello", "shouting")
	assert.Equal(t, shared.FlashInfo, sess.TakeFlash().Kind)
}

func TestFlashSurvivesRedirect(t *testing.T) {
	sm, _, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.SetFlash("Saved", shared.FlashSuccess)
	cookie := commitSession(t, sm, sess)

	next := loadSession(t, sm, cookie)
	msg := next.TakeFlash()
	require.NotNil(t, msg)
	assert.Equal(t, "Saved", msg.Message)
	commitSession(t, sm, next)

	assert.Nil(t, loadSession(t, sm, cookie).TakeFlash())
}

func TestCommitPersistsIdentityAndRotatesToken(t *testing.T) {
	sm, _, mr := newSessionManager(t)
	anon := loadSession(t, sm)
	anonCookie := commitSession(t, sm, anon)

	sess := loadSession(t, sm, anonCookie)
	sess.Login(authorIdentity())
	cookie := commitSession(t, sm, sess)

	assert.NotEqual(t, anonCookie.Value, cookie.Value)
	assert.False(t, mr.Exists("session:"+anonCookie.Value), "pre-login token must be discarded")
	assert.True(t, mr.Exists("session:"+cookie.Value))

	restored := loadSession(t, sm, cookie)
	require.True(t, restored.IsAuthenticated())
	assert.Equal(t, authorIdentity(), *restored.Identity())
	assert.Equal(t, sess.IssuedAt(), restored.IssuedAt())
}

func TestExpiredSessionIsDistinctFromMissingSession(t *testing.T) {
	sm, clock, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())
	cookie := commitSession(t, sm, sess)

	clock.Advance(3601 * time.Second)
	restored := loadSession(t, sm, cookie)
	assert.ErrorIs(t, restored.RequireLogin(), shared.ErrSessionExpired)

	unknown := loadSession(t, sm, &http.Cookie{Name: sm.CookieName(), Value: "forged"})
	assert.NotEqual(t, "forged", unknown.ID)
	assert.ErrorIs(t, unknown.RequireLogin(), shared.ErrUnauthenticated)
}

func TestLogoutDestroysRecord(t *testing.T) {
	sm, _, mr := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())
	cookie := commitSession(t, sm, sess)
	require.True(t, mr.Exists("session:"+cookie.Value))

	restored := loadSession(t, sm, cookie)
	restored.Logout()
	assert.False(t, restored.IsAuthenticated())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, restored))
	assert.False(t, mr.Exists("session:"+cookie.Value))
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestRefreshIdentityKeepsTimestamps(t *testing.T) {
	sm, clock, _ := newSessionManager(t)
	sess := loadSession(t, sm)
	sess.Login(authorIdentity())
	issued := sess.IssuedAt()
	clock.Advance(time.Minute)

	updated := authorIdentity()
	updated.DisplayName = "Renamed"
	sess.RefreshIdentity(updated)

	assert.Equal(t, "Renamed", sess.Identity().DisplayName)
	assert.Equal(t, issued, sess.IssuedAt())

	anon := loadSession(t, sm)
	anon.RefreshIdentity(updated)
	assert.Nil(t, anon.Identity())
}

func TestCorruptPayloadYieldsFreshSession(t *testing.T) {
	sm, _, mr := newSessionManager(t)
	require.NoError(t, mr.Set("session:broken", "{not json"))

	sess := loadSession(t, sm, &http.Cookie{Name: sm.CookieName(), Value: "broken"})
	assert.NotEqual(t, "broken", sess.ID)
	assert.False(t, sess.IsAuthenticated())
}

func TestTTLNeverShorterThanTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := shared.NewSessionManager(client, shared.SessionConfig{Timeout: time.Hour, TTL: time.Minute})
	assert.Equal(t, time.Hour, sm.Timeout())
	assert.Equal(t, 2*time.Hour, sm.TTL())
	assert.Equal(t, "inkwell_session", sm.CookieName())
}
