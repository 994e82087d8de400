package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-cms/inkwell/internal/roles"
)

// DefaultSessionTimeout is the idle period after which an authenticated session expires.
const DefaultSessionTimeout = time.Hour

// Flash severities understood by the layout.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Identity is the role-bearing snapshot of an authenticated user.
type Identity struct {
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        roles.Role `json:"role"`
	Email       string     `json:"email"`
}

// SessionConfig tunes a SessionManager.
type SessionConfig struct {
	CookieName string
	Secret     string
	// Timeout is the sliding idle timeout for authenticated sessions.
	Timeout time.Duration
	// TTL bounds how long a record stays in Redis after its last write. It must
	// exceed Timeout so an expired session can still be told apart from a
	// missing one.
	TTL    time.Duration
	Secure bool
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	timeout    time.Duration
	ttl        time.Duration
	secure     bool
	secret     []byte
	now        func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID             string
	values         map[string]string
	identity       *Identity
	issuedAt       time.Time
	lastActivityAt time.Time
	flash          *FlashMessage
	manager        *SessionManager
	staleID        string
	isNew          bool
	dirty          bool
	destroyed      bool
}

type sessionPayload struct {
	Values         map[string]string `json:"values,omitempty"`
	Identity       *Identity         `json:"identity,omitempty"`
	IssuedAt       time.Time         `json:"issued_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	Flash          *FlashMessage     `json:"flash,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cfg SessionConfig) *SessionManager {
	if cfg.CookieName == "" {
		cfg.CookieName = "inkwell_session"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.TTL < cfg.Timeout {
		cfg.TTL = 2 * cfg.Timeout
	}
	return &SessionManager{
		client:     client,
		cookieName: cfg.CookieName,
		timeout:    cfg.Timeout,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		secret:     []byte(cfg.Secret),
		now:        time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (sm *SessionManager) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	sm.now = now
}

// Load loads or creates a new session for request.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Unknown tokens are never adopted; the client gets a fresh id.
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		// A corrupt payload is treated like a missing one.
		return sm.newSession(), nil
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	if stored.Values != nil {
		sess.values = stored.Values
	}
	sess.identity = stored.Identity
	sess.issuedAt = stored.IssuedAt
	sess.lastActivityAt = stored.LastActivityAt
	sess.flash = stored.Flash
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.staleID != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.staleID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.staleID = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sess.payload())
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sm.now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// Timeout exposes the configured idle timeout.
func (sm *SessionManager) Timeout() time.Duration {
	return sm.timeout
}

// TTL exposes the configured storage lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Login moves the session to the authenticated state for identity. The
// token is rotated and any previous flash message is dropped.
func (s *Session) Login(identity Identity) {
	now := s.clock()
	s.identity = &identity
	s.issuedAt = now
	s.lastActivityAt = now
	s.flash = nil
	s.destroyed = false
	if s.manager != nil && !s.isNew {
		s.staleID = s.ID
		s.ID = s.manager.generateSessionID()
		s.isNew = true
	}
	s.dirty = true
}

// Logout clears the identity and marks the record for deletion.
func (s *Session) Logout() {
	s.identity = nil
	s.issuedAt = time.Time{}
	s.lastActivityAt = time.Time{}
	s.flash = nil
	s.values = make(map[string]string)
	s.destroyed = true
	s.dirty = true
}

// RefreshIdentity replaces the identity snapshot without touching the
// session timestamps. It is a no-op for anonymous sessions.
func (s *Session) RefreshIdentity(identity Identity) {
	if s.identity == nil {
		return
	}
	s.identity = &identity
	s.dirty = true
}

// IsAuthenticated reports whether the session holds an identity that has
// not yet idled out. It does not extend the session.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.identity != nil && !s.idleExpired(s.clock())
}

// Identity returns a copy of the current identity, or nil when anonymous.
func (s *Session) Identity() *Identity {
	if s == nil || s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// CurrentRole returns the role of the current identity.
func (s *Session) CurrentRole() (roles.Role, bool) {
	if s == nil || s.identity == nil {
		return roles.RoleUnknown, false
	}
	return s.identity.Role, true
}

// IssuedAt returns when the current identity logged in.
func (s *Session) IssuedAt() time.Time {
	return s.issuedAt
}

// LastActivityAt returns the last time a protected action refreshed the session.
func (s *Session) LastActivityAt() time.Time {
	return s.lastActivityAt
}

// CheckTimeout enforces the sliding idle timeout. An authenticated session
// idle for longer than the timeout is dropped to anonymous and
// ErrSessionExpired is returned. Otherwise the last activity time moves
// forward to now. Anonymous sessions yield ErrUnauthenticated.
func (s *Session) CheckTimeout() error {
	if s == nil || s.identity == nil {
		return ErrUnauthenticated
	}
	now := s.clock()
	if s.idleExpired(now) {
		s.identity = nil
		s.issuedAt = time.Time{}
		s.lastActivityAt = time.Time{}
		s.dirty = true
		return ErrSessionExpired
	}
	if now.After(s.lastActivityAt) {
		s.lastActivityAt = now
		s.dirty = true
	}
	return nil
}

// Authorize reports whether the current identity may act as required.
// Anonymous sessions are never authorized.
func (s *Session) Authorize(required roles.Role) bool {
	if s == nil || s.identity == nil {
		return false
	}
	return roles.Authorize(s.identity.Role, required)
}

// RequireLogin fails with ErrUnauthenticated or ErrSessionExpired unless an
// identity is present and active.
func (s *Session) RequireLogin() error {
	return s.CheckTimeout()
}

// RequireRole runs RequireLogin and then checks the role hierarchy,
// failing with ErrAccessDenied.
func (s *Session) RequireRole(required roles.Role) error {
	if err := s.RequireLogin(); err != nil {
		return err
	}
	if !s.Authorize(required) {
		return ErrAccessDenied
	}
	return nil
}

// SetFlash stores a one-shot message, replacing any pending one.
func (s *Session) SetFlash(message, severity string) {
	switch severity {
	case FlashSuccess, FlashInfo, FlashWarning, FlashDanger:
	default:
		severity = FlashInfo
	}
	s.flash = &FlashMessage{Kind: severity, Message: message}
	s.dirty = true
}

// TakeFlash returns the pending flash message and clears it.
func (s *Session) TakeFlash() *FlashMessage {
	if s == nil || s.flash == nil {
		return nil
	}
	msg := *s.flash
	s.flash = nil
	s.dirty = true
	return &msg
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

func (s *Session) payload() sessionPayload {
	return sessionPayload{
		Values:         s.values,
		Identity:       s.identity,
		IssuedAt:       s.issuedAt,
		LastActivityAt: s.lastActivityAt,
		Flash:          s.flash,
	}
}

func (s *Session) idleExpired(now time.Time) bool {
	return now.Sub(s.lastActivityAt) > s.timeout()
}

func (s *Session) clock() time.Time {
	if s.manager != nil && s.manager.now != nil {
		return s.manager.now()
	}
	return time.Now()
}

func (s *Session) timeout() time.Duration {
	if s.manager != nil {
		return s.manager.timeout
	}
	return DefaultSessionTimeout
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
