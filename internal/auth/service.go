package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell-cms/inkwell/internal/shared"
)

// LoginObserver counts login attempts.
type LoginObserver interface {
	ObserveLogin(success bool)
}

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics LoginObserver
}

// NewService constructs a new Service. logger and metrics may be nil.
func NewService(repo Repository, logger *slog.Logger, metrics LoginObserver) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, metrics: metrics}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// equalizeTiming burns one bcrypt comparison so unknown usernames take as
// long as wrong passwords.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("inkwell-timing-guard"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// timingGuard runs on every failure path that skips the real comparison.
var timingGuard = equalizeTiming

// Authenticate validates username/password credentials and returns the
// identity to store in the session. Every credential failure is reported
// as shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*shared.Identity, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, s.fail(username, "missing credentials")
	}
	user, err := s.repo.FindActiveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			timingGuard(password)
			return nil, s.fail(username, "unknown or inactive user")
		}
		s.logger.Error("login lookup failed", slog.String("username", username), slog.Any("error", err))
		return nil, err
	}
	if !user.IsActive {
		timingGuard(password)
		return nil, s.fail(username, "unknown or inactive user")
	}
	if !user.Role.Valid() {
		timingGuard(password)
		return nil, s.fail(username, "account has no valid role")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.fail(username, "password mismatch")
	}

	if err := s.repo.TouchLastAccess(ctx, user.ID); err != nil {
		s.logger.Warn("update access time", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	if s.metrics != nil {
		s.metrics.ObserveLogin(true)
	}
	s.logger.Info("login succeeded", slog.Int64("user_id", user.ID), slog.String("role", user.Role.String()))
	identity := user.Identity()
	return &identity, nil
}

func (s *Service) fail(username, reason string) error {
	if s.metrics != nil {
		s.metrics.ObserveLogin(false)
	}
	s.logger.Warn("login failed", slog.String("username", username), slog.String("reason", reason))
	return shared.ErrInvalidCredentials
}
