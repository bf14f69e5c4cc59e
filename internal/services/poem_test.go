package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"shijian-backend/internal/models"
)

type stubPoemStore struct {
	poems       []*models.Poem
	total       int
	searchCalls int
	lastLimit   int
	lastOffset  int
	views       int
	related     []*models.Poem
}

func (s *stubPoemStore) Search(ctx context.Context, query, dynasty, poemType string, limit, offset int) ([]*models.Poem, int, error) {
	s.searchCalls++
	s.lastLimit, s.lastOffset = limit, offset
	return s.poems, s.total, nil
}

func (s *stubPoemStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Poem, error) {
	for _, p := range s.poems {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubPoemStore) IncrementViews(ctx context.Context, id uuid.UUID) error {
	s.views++
	return nil
}

func (s *stubPoemStore) Popular(ctx context.Context, limit int) ([]*models.Poem, error) {
	s.lastLimit = limit
	return s.poems, nil
}

func (s *stubPoemStore) ListByAuthor(ctx context.Context, authorID uuid.UUID, limit int) ([]*models.Poem, error) {
	s.lastLimit = limit
	var out []*models.Poem
	for _, p := range s.poems {
		if p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPoemStore) Related(ctx context.Context, poem *models.Poem, limit int) ([]*models.Poem, error) {
	s.lastLimit = limit
	return s.related, nil
}

func (s *stubPoemStore) Dynasties(ctx context.Context) ([]string, error) {
	return []string{"唐", "宋"}, nil
}

func (s *stubPoemStore) Types(ctx context.Context) ([]string, error) {
	return []string{"边塞", "田园"}, nil
}

type stubAuthorStore struct {
	authors map[uuid.UUID]*models.Author
}

func (s *stubAuthorStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Author, error) {
	if a, ok := s.authors[id]; ok {
		dup := *a
		return &dup, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubAuthorStore) List(ctx context.Context, dynasty string, limit, offset int) ([]*models.Author, int, error) {
	var out []*models.Author
	for _, a := range s.authors {
		out = append(out, a)
	}
	return out, len(out), nil
}

type recordingPrefetcher struct {
	poems []*models.Poem
	err   error
}

func (r *recordingPrefetcher) Prefetch(ctx context.Context, poem *models.Poem) error {
	r.poems = append(r.poems, poem)
	return r.err
}

func samplePoems() (*models.Author, []*models.Poem) {
	libai := &models.Author{ID: uuid.New(), Name: "李白", Dynasty: "唐"}
	return libai, []*models.Poem{
		{ID: uuid.New(), Title: "静夜思", Content: "床前明月光，疑是地上霜。", Dynasty: "唐", AuthorID: libai.ID, Author: libai},
		{ID: uuid.New(), Title: "无题", Content: "相见时难别亦难", Dynasty: "唐"},
	}
}

func TestMatchScore(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		content  string
		author   string
		query    string
		expected float64
	}{
		{"empty query", "静夜思", "床前明月光", "李白", "", 0},
		{"title only", "静夜思", "床前明月光", "李白", "静夜", 0.5},
		{"content only", "静夜思", "床前明月光", "李白", "明月", 0.3},
		{"author only", "静夜思", "床前明月光", "李白", "李白", 0.2},
		{"title and content", "明月", "明月几时有", "苏轼", "明月", 0.8},
		{"everywhere", "月", "月", "月", "月", 1.0},
		{"case folded", "Moonlight", "the MOON rises", "Li Bai", "moon", 0.8},
		{"no match", "静夜思", "床前明月光", "李白", "杜甫", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expected, MatchScore(tc.title, tc.content, tc.author, tc.query), 1e-9)
		})
	}
}

func TestNormalizeSearch(t *testing.T) {
	p := NormalizeSearch(models.SearchParams{Query: "  月  ", Page: 0, Limit: 0})
	require.Equal(t, "月", p.Query)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 10, p.Limit)

	p = NormalizeSearch(models.SearchParams{Page: 3, Limit: 500})
	require.Equal(t, 3, p.Page)
	require.Equal(t, 50, p.Limit)
}

func TestPoemService_SearchBuildsPage(t *testing.T) {
	_, poems := samplePoems()
	store := &stubPoemStore{poems: poems, total: 21}
	svc := NewPoemService(store, &stubAuthorStore{}, nil, 0, nil)

	resp, err := svc.Search(context.Background(), models.SearchParams{Query: "明月", Page: 2, Limit: 10})
	require.NoError(t, err)

	require.Equal(t, 21, resp.Total)
	require.Equal(t, 2, resp.Page)
	require.Equal(t, 10, resp.Limit)
	require.Equal(t, 3, resp.TotalPages)
	require.Equal(t, 10, store.lastOffset)
	require.Len(t, resp.Poems, 2)

	require.Equal(t, "李白", resp.Poems[0].AuthorName)
	require.InDelta(t, 0.3, resp.Poems[0].MatchScore, 1e-9)
	require.Equal(t, UnknownAuthor, resp.Poems[1].AuthorName)
	require.Zero(t, resp.Poems[1].MatchScore)
}

func TestPoemService_SearchUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, poems := samplePoems()
	store := &stubPoemStore{poems: poems, total: 2}
	svc := NewPoemService(store, &stubAuthorStore{}, client, 12*time.Hour, nil)

	params := models.SearchParams{Query: "月", Dynasty: "唐"}
	first, err := svc.Search(context.Background(), params)
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), params)
	require.NoError(t, err)

	require.Equal(t, 1, store.searchCalls)
	require.Equal(t, first, second)
	require.Equal(t, 12*time.Hour, mr.TTL(`search:"唐":"":"月":1:10`))
}

func TestPoemService_SearchCacheKeepsFiltersApart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, poems := samplePoems()
	store := &stubPoemStore{poems: poems, total: 2}
	svc := NewPoemService(store, &stubAuthorStore{}, client, time.Hour, nil)

	_, err := svc.Search(context.Background(), models.SearchParams{Dynasty: "a:b"})
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), models.SearchParams{Dynasty: "a", Type: "b"})
	require.NoError(t, err)

	require.Equal(t, 2, store.searchCalls)
	require.NotEqual(t,
		searchCacheKey(NormalizeSearch(models.SearchParams{Dynasty: "a:b"})),
		searchCacheKey(NormalizeSearch(models.SearchParams{Dynasty: "a", Type: "b"})))
}

func TestPoemService_GetPoemCountsViewAndPrefetches(t *testing.T) {
	_, poems := samplePoems()
	store := &stubPoemStore{poems: poems}
	prefetcher := &recordingPrefetcher{err: errors.New("queue down")}
	svc := NewPoemService(store, &stubAuthorStore{}, nil, 0, prefetcher)

	poem, err := svc.GetPoem(context.Background(), poems[0].ID)
	require.NoError(t, err)
	require.Equal(t, "静夜思", poem.Title)
	require.Equal(t, 1, store.views)
	require.Len(t, prefetcher.poems, 1)

	_, err = svc.GetPoem(context.Background(), uuid.New())
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPoemService_AuthorLookups(t *testing.T) {
	libai, poems := samplePoems()
	store := &stubPoemStore{poems: poems}
	authors := &stubAuthorStore{authors: map[uuid.UUID]*models.Author{libai.ID: libai}}
	svc := NewPoemService(store, authors, nil, 0, nil)

	author, err := svc.GetAuthor(context.Background(), libai.ID)
	require.NoError(t, err)
	require.Len(t, author.Poems, 1)

	byAuthor, err := svc.ByAuthor(context.Background(), libai.ID, 0)
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	require.Equal(t, 20, store.lastLimit)

	_, err = svc.ByAuthor(context.Background(), uuid.New(), 0)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	list, err := svc.ListAuthors(context.Background(), "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.Equal(t, 1, list.TotalPages)
}

func TestPoemService_RelatedDefaultsLimit(t *testing.T) {
	_, poems := samplePoems()
	store := &stubPoemStore{poems: poems, related: poems[1:]}
	svc := NewPoemService(store, &stubAuthorStore{}, nil, 0, nil)

	related, err := svc.Related(context.Background(), poems[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, related, 1)
	require.Equal(t, 5, store.lastLimit)
}
