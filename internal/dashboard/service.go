// Package dashboard builds the landing page statistics for each role.
package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell-cms/inkwell/internal/articles"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// UserCounter reports active accounts per role.
type UserCounter interface {
	CountByRole(ctx context.Context) (map[roles.Role]int, error)
}

// ArticleSource supplies article totals and the latest published pieces.
type ArticleSource interface {
	CountAll(ctx context.Context) (int, error)
	CountByAuthor(ctx context.Context, authorID int64) (int, error)
	Latest(ctx context.Context) ([]articles.Article, error)
}

// Stat is one labelled number on the dashboard.
type Stat struct {
	Label string
	Value int
}

// Summary is everything the dashboard page shows.
type Summary struct {
	Stats  []Stat
	Latest []articles.Article
}

// Service computes dashboard summaries.
type Service struct {
	users    UserCounter
	articles ArticleSource
}

// NewService builds Service instance.
func NewService(users UserCounter, articles ArticleSource) *Service {
	return &Service{users: users, articles: articles}
}

// Summary gathers the statistics visible to actor. Queries run concurrently
// and the first failure cancels the rest.
func (s *Service) Summary(ctx context.Context, actor shared.Identity) (Summary, error) {
	var (
		counts map[roles.Role]int
		total  int
		mine   int
		latest []articles.Article
	)
	g, ctx := errgroup.WithContext(ctx)
	if roles.Authorize(actor.Role, roles.RoleAdministrator) {
		g.Go(func() error {
			var err error
			counts, err = s.users.CountByRole(ctx)
			if err != nil {
				return fmt.Errorf("dashboard: count users: %w", err)
			}
			return nil
		})
	}
	if actor.Role == roles.RoleAuthor {
		g.Go(func() error {
			var err error
			mine, err = s.articles.CountByAuthor(ctx, actor.UserID)
			if err != nil {
				return fmt.Errorf("dashboard: count own articles: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		total, err = s.articles.CountAll(ctx)
		if err != nil {
			return fmt.Errorf("dashboard: count articles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		latest, err = s.articles.Latest(ctx)
		if err != nil {
			return fmt.Errorf("dashboard: latest articles: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	var stats []Stat
	switch actor.Role {
	case roles.RoleSuperUser:
		stats = append(stats,
			Stat{Label: "Total Users", Value: counts[roles.RoleSuperUser] + counts[roles.RoleAdministrator] + counts[roles.RoleAuthor]},
			Stat{Label: "Administrators", Value: counts[roles.RoleAdministrator]},
			Stat{Label: "Authors", Value: counts[roles.RoleAuthor]},
		)
	case roles.RoleAdministrator:
		stats = append(stats, Stat{Label: "Authors", Value: counts[roles.RoleAuthor]})
	case roles.RoleAuthor:
		stats = append(stats, Stat{Label: "My Articles", Value: mine})
	}
	stats = append(stats, Stat{Label: "Total Articles", Value: total})
	return Summary{Stats: stats, Latest: latest}, nil
}
