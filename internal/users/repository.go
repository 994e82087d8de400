package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/internal/platform/db"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, full_name, email, phone, username, role, access_time, profile_image, address, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Username, &role, &u.AccessTime,
		&u.ProfileImage, &u.Address, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Role = roles.Parse(role)
	return u, err
}

// ListByRole returns active accounts holding role, newest first.
func (r *Repository) ListByRole(ctx context.Context, role roles.Role) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE is_active AND role = $1 ORDER BY created_at DESC, id DESC`, role.String())
	if err != nil {
		return nil, fmt.Errorf("users: list %s: %w", role, err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListAuthorsWithCounts returns active authors with their article totals.
func (r *Repository) ListAuthorsWithCounts(ctx context.Context) ([]AuthorSummary, error) {
	const q = `SELECT u.id, u.full_name, u.email, u.phone, u.username, u.role, u.access_time, u.profile_image, u.address, u.is_active, u.created_at, u.updated_at,
	COUNT(a.id), COUNT(a.id) FILTER (WHERE a.published)
FROM users u
LEFT JOIN articles a ON a.author_id = u.id
WHERE u.is_active AND u.role = $1
GROUP BY u.id
ORDER BY u.created_at DESC, u.id DESC`
	rows, err := r.pool.Query(ctx, q, roles.RoleAuthor.String())
	if err != nil {
		return nil, fmt.Errorf("users: list authors: %w", err)
	}
	defer rows.Close()

	var out []AuthorSummary
	for rows.Next() {
		var (
			s    AuthorSummary
			role string
		)
		if err := rows.Scan(&s.ID, &s.FullName, &s.Email, &s.Phone, &s.Username, &role, &s.AccessTime,
			&s.ProfileImage, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
			&s.ArticleCount, &s.PublishedCount); err != nil {
			return nil, fmt.Errorf("users: scan author: %w", err)
		}
		s.Role = roles.Parse(role)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByRole returns the number of active accounts per role.
func (r *Repository) CountByRole(ctx context.Context) (map[roles.Role]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users WHERE is_active GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("users: count by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[roles.Role]int)
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("users: scan count: %w", err)
		}
		counts[roles.Parse(role)] = n
	}
	return counts, rows.Err()
}

// Get returns the active account id.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: get %d: %w", id, err)
	}
	return &u, nil
}

// PasswordHash returns the stored hash of the active account id.
func (r *Repository) PasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1 AND is_active`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("users: password hash %d: %w", id, err)
	}
	return hash, nil
}

// UsernameTaken reports whether an active account already uses username.
func (r *Repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND is_active)`, username).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("users: username check: %w", err)
	}
	return taken, nil
}

// EmailTaken reports whether an active account other than exceptID uses email.
func (r *Repository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND is_active AND id <> $2)`, email, exceptID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("users: email check: %w", err)
	}
	return taken, nil
}

// Create inserts an account and returns it.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) (*User, error) {
	const q = `INSERT INTO users (full_name, email, phone, username, password_hash, role, address)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns
	created, err := scanUser(r.pool.QueryRow(ctx, q, u.FullName, u.Email, u.Phone, u.Username, passwordHash, u.Role.String(), u.Address))
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, fmt.Errorf("users: create: %w", shared.ErrDuplicate)
		}
		return nil, fmt.Errorf("users: create: %w", err)
	}
	return &created, nil
}

// Update saves the editable profile fields of u.
func (r *Repository) Update(ctx context.Context, u User) error {
	const q = `UPDATE users SET full_name = $2, email = $3, phone = $4, address = $5, profile_image = $6, updated_at = $7
WHERE id = $1 AND is_active`
	tag, err := r.pool.Exec(ctx, q, u.ID, u.FullName, u.Email, u.Phone, u.Address, u.ProfileImage, time.Now().UTC())
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("users: update: %w", shared.ErrDuplicate)
		}
		return fmt.Errorf("users: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash of account id.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND is_active`, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Deactivate disables account id and removes its articles in one
// transaction. It returns the number of articles removed.
func (r *Repository) Deactivate(ctx context.Context, id int64) (int64, error) {
	var removed int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active`, id, time.Now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		tag, err = tx.Exec(ctx, `DELETE FROM articles WHERE author_id = $1`, id)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("users: deactivate %d: %w", id, err)
	}
	return removed, nil
}

var _ RepositoryPort = (*Repository)(nil)
