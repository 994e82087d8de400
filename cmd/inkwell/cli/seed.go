package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/users"
)

// Default bootstrap account.
const (
	SeedUsername = "superadmin"
	SeedEmail    = "admin@example.com"
	SeedFullName = "Super Administrator"
)

// SeedStore is the slice of the user repository the seeder needs.
type SeedStore interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u users.User, passwordHash string) (*users.User, error)
}

// Seeder creates the initial Super_User account. It writes through the
// repository because no role may create a Super_User through the service.
type Seeder struct {
	store    SeedStore
	logger   *slog.Logger
	hashCost int
}

// NewSeeder constructs a Seeder. A zero hashCost uses bcrypt.DefaultCost.
func NewSeeder(store SeedStore, logger *slog.Logger, hashCost int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Seeder{store: store, logger: logger, hashCost: hashCost}
}

// SeedSuperUser creates the bootstrap account unless it already exists. It
// reports whether an account was created.
func (s *Seeder) SeedSuperUser(ctx context.Context, password string) (bool, error) {
	if password == "" {
		return false, errors.New("seed: password must be provided")
	}
	taken, err := s.store.UsernameTaken(ctx, SeedUsername)
	if err != nil {
		return false, fmt.Errorf("seed: %w", err)
	}
	if taken {
		s.logger.Info("seed skipped, super user exists", slog.String("username", SeedUsername))
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return false, fmt.Errorf("seed: hash password: %w", err)
	}
	created, err := s.store.Create(ctx, users.User{
		FullName: SeedFullName,
		Email:    SeedEmail,
		Username: SeedUsername,
		Role:     roles.RoleSuperUser,
	}, string(hash))
	if err != nil {
		return false, fmt.Errorf("seed: %w", err)
	}
	s.logger.Info("super user seeded", slog.Int64("user_id", created.ID), slog.String("username", created.Username))
	return true, nil
}
