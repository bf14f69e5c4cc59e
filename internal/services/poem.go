package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/cases"

	"shijian-backend/internal/models"
)

const UnknownAuthor = "未知作者"

const (
	defaultPageSize    = 10
	maxPageSize        = 50
	defaultPopular     = 10
	defaultRelated     = 5
	defaultAuthorPoems = 20
	authorDetailPoems  = 100
)

type PoemStore interface {
	Search(ctx context.Context, query, dynasty, poemType string, limit, offset int) ([]*models.Poem, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Poem, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
	Popular(ctx context.Context, limit int) ([]*models.Poem, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID, limit int) ([]*models.Poem, error)
	Related(ctx context.Context, poem *models.Poem, limit int) ([]*models.Poem, error)
	Dynasties(ctx context.Context) ([]string, error)
	Types(ctx context.Context) ([]string, error)
}

type AuthorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Author, error)
	List(ctx context.Context, dynasty string, limit, offset int) ([]*models.Author, int, error)
}

// Prefetcher warms derived data for a poem that is about to be viewed.
type Prefetcher interface {
	Prefetch(ctx context.Context, poem *models.Poem) error
}

// PoemService serves the poem catalogue. Search pages are cached in redis
// when a client is configured.
type PoemService struct {
	poems      PoemStore
	authors    AuthorStore
	cache      *redis.Client
	searchTTL  time.Duration
	prefetcher Prefetcher
	logger     *slog.Logger
}

func NewPoemService(poems PoemStore, authors AuthorStore, cache *redis.Client, searchTTL time.Duration, prefetcher Prefetcher) *PoemService {
	return &PoemService{
		poems:      poems,
		authors:    authors,
		cache:      cache,
		searchTTL:  searchTTL,
		prefetcher: prefetcher,
		logger:     slog.Default().With("component", "poems"),
	}
}

// NormalizeSearch applies paging defaults: page 1, limit 10, limit at most 50.
func NormalizeSearch(params models.SearchParams) models.SearchParams {
	params.Query = strings.TrimSpace(params.Query)
	params.Dynasty = strings.TrimSpace(params.Dynasty)
	params.Type = strings.TrimSpace(params.Type)
	if params.Page < 1 {
		params.Page = 1
	}
	params.Limit = clampLimit(params.Limit, defaultPageSize)
	return params
}

func clampLimit(limit, def int) int {
	if limit < 1 {
		return def
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// searchCacheKey quotes the free-text fields so a separator inside one of
// them cannot make two parameter sets share a key.
func searchCacheKey(p models.SearchParams) string {
	return fmt.Sprintf("search:%q:%q:%q:%d:%d", p.Dynasty, p.Type, p.Query, p.Page, p.Limit)
}

// MatchScore is a naive relevance hint: 0.5 when the title contains the
// query, 0.3 for the content and 0.2 for the author, compared case-folded.
func MatchScore(title, content, author, query string) float64 {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return 0
	}

	score := 0.0
	if strings.Contains(fold.String(title), q) {
		score += 0.5
	}
	if strings.Contains(fold.String(content), q) {
		score += 0.3
	}
	if strings.Contains(fold.String(author), q) {
		score += 0.2
	}
	return score
}

func authorName(p *models.Poem) string {
	if p.Author == nil || p.Author.Name == "" {
		return UnknownAuthor
	}
	return p.Author.Name
}

func (s *PoemService) Search(ctx context.Context, params models.SearchParams) (*models.SearchResponse, error) {
	params = NormalizeSearch(params)
	key := searchCacheKey(params)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var cached models.SearchResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	offset := (params.Page - 1) * params.Limit
	poems, total, err := s.poems.Search(ctx, params.Query, params.Dynasty, params.Type, params.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search poems: %w", err)
	}

	resp := &models.SearchResponse{
		Poems:      make([]models.SearchResult, 0, len(poems)),
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: totalPages(total, params.Limit),
	}
	for _, p := range poems {
		name := authorName(p)
		resp.Poems = append(resp.Poems, models.SearchResult{
			ID:         p.ID,
			Title:      p.Title,
			Content:    p.Content,
			Dynasty:    p.Dynasty,
			AuthorName: name,
			Type:       p.Type,
			MatchScore: MatchScore(p.Title, p.Content, name, params.Query),
		})
	}

	if s.cache != nil && s.searchTTL > 0 {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(ctx, key, data, s.searchTTL).Err(); err != nil {
				s.logger.Warn("failed to cache search page", "key", key, "error", err)
			}
		}
	}

	return resp, nil
}

// GetPoem loads a poem with its author and appreciations, counts the view
// and queues an analysis prefetch.
func (s *PoemService) GetPoem(ctx context.Context, id uuid.UUID) (*models.Poem, error) {
	poem, err := s.poems.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Poem not found"}
		}
		return nil, err
	}

	if err := s.poems.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("failed to count poem view", "poem_id", id, "error", err)
	}

	if s.prefetcher != nil {
		if err := s.prefetcher.Prefetch(ctx, poem); err != nil {
			s.logger.Warn("failed to queue analysis prefetch", "poem_id", id, "error", err)
		}
	}

	return poem, nil
}

func (s *PoemService) Popular(ctx context.Context, limit int) ([]*models.Poem, error) {
	return s.poems.Popular(ctx, clampLimit(limit, defaultPopular))
}

func (s *PoemService) Related(ctx context.Context, id uuid.UUID, limit int) ([]*models.Poem, error) {
	poem, err := s.poems.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Poem not found"}
		}
		return nil, err
	}
	return s.poems.Related(ctx, poem, clampLimit(limit, defaultRelated))
}

func (s *PoemService) Dynasties(ctx context.Context) ([]string, error) {
	return s.poems.Dynasties(ctx)
}

func (s *PoemService) Types(ctx context.Context) ([]string, error) {
	return s.poems.Types(ctx)
}

func (s *PoemService) GetAuthor(ctx context.Context, id uuid.UUID) (*models.Author, error) {
	author, err := s.authors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Author not found"}
		}
		return nil, err
	}

	poems, err := s.poems.ListByAuthor(ctx, id, authorDetailPoems)
	if err != nil {
		return nil, err
	}
	author.Poems = poems
	return author, nil
}

func (s *PoemService) ByAuthor(ctx context.Context, authorID uuid.UUID, limit int) ([]*models.Poem, error) {
	if _, err := s.authors.GetByID(ctx, authorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Author not found"}
		}
		return nil, err
	}
	return s.poems.ListByAuthor(ctx, authorID, clampLimit(limit, defaultAuthorPoems))
}

func (s *PoemService) ListAuthors(ctx context.Context, dynasty string, page, limit int) (*models.AuthorListResponse, error) {
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, defaultAuthorPoems)

	authors, total, err := s.authors.List(ctx, strings.TrimSpace(dynasty), limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if authors == nil {
		authors = []*models.Author{}
	}

	return &models.AuthorListResponse{
		Authors:    authors,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}
