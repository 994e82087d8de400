package articles_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/internal/articles"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

type memRepo struct {
	items  map[int64]*articles.Article
	nextID int64
	now    time.Time
	query  string
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]*articles.Article{}, nextID: 1, now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *memRepo) sorted(keep func(articles.Article) bool) []articles.Article {
	var out []articles.Article
	for _, a := range m.items {
		if keep(*a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func limit(in []articles.Article, n int) []articles.Article {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func (m *memRepo) Get(ctx context.Context, id int64) (*articles.Article, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) ListByAuthor(ctx context.Context, authorID int64) ([]articles.Article, error) {
	return m.sorted(func(a articles.Article) bool { return a.AuthorID == authorID }), nil
}

func (m *memRepo) Latest(ctx context.Context, n int) ([]articles.Article, error) {
	return limit(m.sorted(func(a articles.Article) bool { return a.Published }), n), nil
}

func (m *memRepo) Search(ctx context.Context, query string, n int) ([]articles.Article, error) {
	m.query = query
	q := strings.ToLower(query)
	return limit(m.sorted(func(a articles.Article) bool {
		return a.Published && (strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Body), q))
	}), n), nil
}

func (m *memRepo) CountAll(ctx context.Context) (int, error) { return len(m.items), nil }

func (m *memRepo) CountByAuthor(ctx context.Context, authorID int64) (int, error) {
	return len(m.sorted(func(a articles.Article) bool { return a.AuthorID == authorID })), nil
}

func (m *memRepo) Create(ctx context.Context, a articles.Article) (*articles.Article, error) {
	a.ID = m.nextID
	m.nextID++
	m.now = m.now.Add(time.Minute)
	a.CreatedAt, a.UpdatedAt = m.now, m.now
	m.items[a.ID] = &a
	cp := a
	return &cp, nil
}

func (m *memRepo) Update(ctx context.Context, a articles.Article) error {
	cur, ok := m.items[a.ID]
	if !ok || cur.AuthorID != a.AuthorID {
		return shared.ErrNotFound
	}
	cp := a
	m.items[a.ID] = &cp
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id, authorID int64) error {
	cur, ok := m.items[id]
	if !ok || cur.AuthorID != authorID {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

var (
	author1 = shared.Identity{UserID: 11, Username: "author1", DisplayName: "Author One", Role: roles.RoleAuthor}
	author2 = shared.Identity{UserID: 12, Username: "author2", DisplayName: "Author Two", Role: roles.RoleAuthor}
	admin   = shared.Identity{UserID: 2, Username: "ada", DisplayName: "Ada", Role: roles.RoleAdministrator}
)

func newService(t *testing.T) (*articles.Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return articles.NewService(repo, nil), repo
}

func mustCreate(t *testing.T, svc *articles.Service, actor shared.Identity, title string, published bool) *articles.Article {
	t.Helper()
	a, err := svc.Create(context.Background(), actor, articles.Input{Title: title, Body: "Body of " + title, Published: published})
	require.NoError(t, err)
	return a
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), author1, articles.Input{Title: "  ", Order: -1})
	var fields shared.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Equal(t, "Title is required.", fields["Title"])
	assert.Equal(t, "Content is required.", fields["Body"])
	assert.Equal(t, "Order cannot be negative.", fields["Order"])

	_, err = svc.Create(context.Background(), shared.Identity{UserID: 99}, articles.Input{Title: "x", Body: "y"})
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

func TestCreateAssignsOwner(t *testing.T) {
	svc, _ := newService(t)
	a := mustCreate(t, svc, author1, "  Hello  ", true)
	assert.Equal(t, author1.UserID, a.AuthorID)
	assert.Equal(t, "Hello", a.Title)
	assert.Equal(t, "Author One", a.AuthorName)

	composed := mustCreate(t, svc, author1, "Cafe\u0301 notes", true)
	assert.Equal(t, "Caf\u00e9 notes", composed.Title, "titles are stored NFC")
}

func TestLatestShowsSixPublished(t *testing.T) {
	svc, _ := newService(t)
	for i := 0; i < 8; i++ {
		mustCreate(t, svc, author1, "Post "+string(rune('A'+i)), i != 7)
	}
	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, latest, articles.LatestLimit)
	assert.Equal(t, "Post G", latest[0].Title, "newest published first; the draft is skipped")
	for _, a := range latest {
		assert.True(t, a.Published)
	}
}

func TestSearch(t *testing.T) {
	svc, repo := newService(t)
	mustCreate(t, svc, author1, "Go concurrency", true)
	mustCreate(t, svc, author1, "Baking bread", true)
	mustCreate(t, svc, author2, "Go drafts", false)

	found, err := svc.Search(context.Background(), "  go ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Go concurrency", found[0].Title)
	assert.Equal(t, "go", repo.query)

	all, err := svc.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Search(context.Background(), strings.Repeat("x", 300))
	require.NoError(t, err)
	assert.Len(t, repo.query, 100)
}

func TestDraftVisibility(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	draft := mustCreate(t, svc, author1, "Secret", false)

	_, err := svc.Get(ctx, author2, draft.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	got, err := svc.Get(ctx, author1, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "Secret", got.Title)

	_, err = svc.Get(ctx, admin, draft.ID)
	assert.NoError(t, err)

	pub := mustCreate(t, svc, author1, "Public", true)
	_, err = svc.Get(ctx, author2, pub.ID)
	assert.NoError(t, err)
}

func TestOnlyOwnerEditsAndDeletes(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, author1, "Mine", false)

	_, err := svc.Update(ctx, author2, a.ID, articles.Input{Title: "Hijacked", Body: "x"})
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
	_, err = svc.Update(ctx, admin, a.ID, articles.Input{Title: "Hijacked", Body: "x"})
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
	_, err = svc.Delete(ctx, author2, a.ID)
	assert.ErrorIs(t, err, shared.ErrAccessDenied)

	updated, err := svc.Update(ctx, author1, a.ID, articles.Input{Title: "Mine v2", Body: "new body", Published: true, Order: 3})
	require.NoError(t, err)
	assert.Equal(t, "Mine v2", updated.Title)
	assert.True(t, repo.items[a.ID].Published)
	assert.Equal(t, 3, repo.items[a.ID].Order)

	_, err = svc.Delete(ctx, author1, a.ID)
	require.NoError(t, err)
	_, err = svc.Owned(ctx, author1, a.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCounts(t *testing.T) {
	svc, _ := newService(t)
	mustCreate(t, svc, author1, "A", true)
	mustCreate(t, svc, author1, "B", false)
	mustCreate(t, svc, author2, "C", true)

	total, err := svc.CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	mine, err := svc.CountByAuthor(context.Background(), author1.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, mine)
}
