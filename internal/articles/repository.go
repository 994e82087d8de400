package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

var _ RepositoryPort = (*Repository)(nil)

const selectArticles = `SELECT a.id, a.author_id, u.full_name, a.title, a.body, a.published, a.sort_order, a.created_at, a.updated_at
FROM articles a
JOIN users u ON u.id = a.author_id`

func scanArticle(row pgx.Row) (Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Body, &a.Published, &a.Order, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collect(rows pgx.Rows, err error) ([]Article, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("articles: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns article id.
func (r *Repository) Get(ctx context.Context, id int64) (*Article, error) {
	a, err := scanArticle(r.pool.QueryRow(ctx, selectArticles+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("articles: get %d: %w", id, err)
	}
	return &a, nil
}

// ListByAuthor returns every article of authorID in display order.
func (r *Repository) ListByAuthor(ctx context.Context, authorID int64) ([]Article, error) {
	out, err := collect(r.pool.Query(ctx, selectArticles+` WHERE a.author_id = $1 ORDER BY a.sort_order, a.created_at DESC, a.id DESC`, authorID))
	if err != nil {
		return nil, fmt.Errorf("articles: list by author: %w", err)
	}
	return out, nil
}

// Latest returns the newest published articles of active authors.
func (r *Repository) Latest(ctx context.Context, limit int) ([]Article, error) {
	out, err := collect(r.pool.Query(ctx, selectArticles+` WHERE a.published AND u.is_active ORDER BY a.created_at DESC, a.id DESC LIMIT $1`, limit))
	if err != nil {
		return nil, fmt.Errorf("articles: latest: %w", err)
	}
	return out, nil
}

// Search matches query against published titles and bodies.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	out, err := collect(r.pool.Query(ctx, selectArticles+` WHERE a.published AND u.is_active AND (a.title ILIKE $1 OR a.body ILIKE $1) ORDER BY a.created_at DESC, a.id DESC LIMIT $2`, pattern, limit))
	if err != nil {
		return nil, fmt.Errorf("articles: search: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CountAll returns the number of articles by active authors.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles a JOIN users u ON u.id = a.author_id WHERE u.is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("articles: count: %w", err)
	}
	return n, nil
}

// CountByAuthor returns the number of articles owned by authorID.
func (r *Repository) CountByAuthor(ctx context.Context, authorID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE author_id = $1`, authorID).Scan(&n); err != nil {
		return 0, fmt.Errorf("articles: count by author: %w", err)
	}
	return n, nil
}

// Create inserts a and returns the stored row.
func (r *Repository) Create(ctx context.Context, a Article) (*Article, error) {
	const q = `INSERT INTO articles (author_id, title, body, published, sort_order)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, a.AuthorID, a.Title, a.Body, a.Published, a.Order).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("articles: create: %w", err)
	}
	return &a, nil
}

// Update saves the editable fields of a. Only rows owned by a.AuthorID match.
func (r *Repository) Update(ctx context.Context, a Article) error {
	tag, err := r.pool.Exec(ctx, `UPDATE articles SET title = $3, body = $4, published = $5, sort_order = $6, updated_at = NOW() WHERE id = $1 AND author_id = $2`,
		a.ID, a.AuthorID, a.Title, a.Body, a.Published, a.Order)
	if err != nil {
		return fmt.Errorf("articles: update %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes article id owned by authorID.
func (r *Repository) Delete(ctx context.Context, id, authorID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM articles WHERE id = $1 AND author_id = $2`, id, authorID)
	if err != nil {
		return fmt.Errorf("articles: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
