package articles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// LatestLimit is how many articles the public listings show.
const LatestLimit = 6

// maxQueryLength bounds search terms.
const maxQueryLength = 100

// RepositoryPort defines data access methods for articles.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Article, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]Article, error)
	Latest(ctx context.Context, limit int) ([]Article, error)
	Search(ctx context.Context, query string, limit int) ([]Article, error)
	CountAll(ctx context.Context) (int, error)
	CountByAuthor(ctx context.Context, authorID int64) (int, error)
	Create(ctx context.Context, a Article) (*Article, error)
	Update(ctx context.Context, a Article) error
	Delete(ctx context.Context, id, authorID int64) error
}

// Service handles article business logic.
type Service struct {
	repo      RepositoryPort
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, validator: validator.New()}
}

// Latest returns the newest published articles.
func (s *Service) Latest(ctx context.Context) ([]Article, error) {
	return s.repo.Latest(ctx, LatestLimit)
}

// Search matches published articles against query. A blank query falls
// back to Latest.
func (s *Service) Search(ctx context.Context, query string) ([]Article, error) {
	query = norm.NFC.String(strings.TrimSpace(query))
	if query == "" {
		return s.Latest(ctx)
	}
	if r := []rune(query); len(r) > maxQueryLength {
		query = string(r[:maxQueryLength])
	}
	return s.repo.Search(ctx, query, LatestLimit)
}

// Get returns article id as seen by actor. Drafts are visible to their
// author and to administrators; everyone else gets ErrNotFound.
func (s *Service) Get(ctx context.Context, actor shared.Identity, id int64) (*Article, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Published && a.AuthorID != actor.UserID && !roles.Authorize(actor.Role, roles.RoleAdministrator) {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

// Mine returns the actor's own articles.
func (s *Service) Mine(ctx context.Context, actor shared.Identity) ([]Article, error) {
	return s.repo.ListByAuthor(ctx, actor.UserID)
}

// Owned returns article id when actor wrote it.
func (s *Service) Owned(ctx context.Context, actor shared.Identity, id int64) (*Article, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.AuthorID != actor.UserID {
		return nil, shared.ErrAccessDenied
	}
	return a, nil
}

// CountAll returns the total number of articles.
func (s *Service) CountAll(ctx context.Context) (int, error) {
	return s.repo.CountAll(ctx)
}

// CountByAuthor returns the number of articles written by authorID.
func (s *Service) CountByAuthor(ctx context.Context, authorID int64) (int, error) {
	return s.repo.CountByAuthor(ctx, authorID)
}

// Create stores a new article owned by actor.
func (s *Service) Create(ctx context.Context, actor shared.Identity, in Input) (*Article, error) {
	if !roles.Authorize(actor.Role, roles.RoleAuthor) {
		return nil, shared.ErrAccessDenied
	}
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, Article{
		AuthorID:   actor.UserID,
		AuthorName: actor.DisplayName,
		Title:      in.Title,
		Body:       in.Body,
		Published:  in.Published,
		Order:      in.Order,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("article created", slog.Int64("article_id", created.ID), slog.Int64("author_id", actor.UserID))
	return created, nil
}

// Update edits an article the actor owns.
func (s *Service) Update(ctx context.Context, actor shared.Identity, id int64, in Input) (*Article, error) {
	current, err := s.Owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	in, err = s.validate(in)
	if err != nil {
		return nil, err
	}
	current.Title = in.Title
	current.Body = in.Body
	current.Published = in.Published
	current.Order = in.Order
	if err := s.repo.Update(ctx, *current); err != nil {
		return nil, err
	}
	return current, nil
}

// Delete removes an article the actor owns.
func (s *Service) Delete(ctx context.Context, actor shared.Identity, id int64) (*Article, error) {
	current, err := s.Owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id, actor.UserID); err != nil {
		return nil, err
	}
	s.logger.Info("article deleted", slog.Int64("article_id", id), slog.Int64("author_id", actor.UserID))
	return current, nil
}

var fieldLabels = map[string]string{
	"Title": "Title",
	"Body":  "Content",
	"Order": "Order",
}

func (s *Service) validate(in Input) (Input, error) {
	// Stored text is NFC so searches match however the browser composed it.
	in.Title = norm.NFC.String(strings.TrimSpace(in.Title))
	in.Body = norm.NFC.String(strings.TrimSpace(in.Body))
	err := s.validator.Struct(in)
	if err == nil {
		return in, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return in, err
	}
	fields := shared.FieldErrors{}
	for _, fe := range verrs {
		label := fieldLabels[fe.Field()]
		switch fe.Tag() {
		case "required":
			fields.Add(fe.Field(), label+" is required.")
		case "max":
			fields.Add(fe.Field(), label+" must be at most "+fe.Param()+" characters.")
		case "gte":
			fields.Add(fe.Field(), label+" cannot be negative.")
		default:
			fields.Add(fe.Field(), label+" is invalid.")
		}
	}
	return in, fields.Err()
}
