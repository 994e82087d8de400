package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindActiveByUsername(ctx context.Context, username string) (*User, error)
	TouchLastAccess(ctx context.Context, userID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindActiveByUsername fetches the active account with exactly username.
// The comparison is case sensitive.
func (r *PGRepository) FindActiveByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT id, username, full_name, email, password_hash, role, is_active, access_time
FROM users WHERE username = $1 AND is_active`
	var (
		user User
		role string
	)
	err := r.pool.QueryRow(ctx, q, username).Scan(
		&user.ID, &user.Username, &user.FullName, &user.Email, &user.PasswordHash, &role, &user.IsActive, &user.LastAccessAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	user.Role = roles.Parse(role)
	return &user, nil
}

// TouchLastAccess records the login time on the account.
func (r *PGRepository) TouchLastAccess(ctx context.Context, userID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET access_time = $2 WHERE id = $1`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("auth: touch access time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
