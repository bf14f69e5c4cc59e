package models

import (
	"time"

	"github.com/google/uuid"
)

type Author struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Dynasty      string    `json:"dynasty"`
	Introduction *string   `json:"introduction"`
	BirthYear    *int      `json:"birth_year"`
	DeathYear    *int      `json:"death_year"`
	CreatedAt    time.Time `json:"created_at"`
	Poems        []*Poem   `json:"poems,omitempty"`
}

type Poem struct {
	ID            uuid.UUID       `json:"id"`
	Title         string          `json:"title"`
	Content       string          `json:"content"`
	Dynasty       string          `json:"dynasty"`
	Type          string          `json:"type"`
	Themes        []string        `json:"themes"`
	AuthorID      uuid.UUID       `json:"author_id"`
	Author        *Author         `json:"author,omitempty"`
	Appreciations []*Appreciation `json:"appreciations,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Appreciation struct {
	ID        uuid.UUID `json:"id"`
	PoemID    uuid.UUID `json:"poem_id"`
	Content   string    `json:"content"`
	Source    *string   `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchParams filters the poem catalogue. Page is 1-based.
type SearchParams struct {
	Query   string `json:"query"`
	Dynasty string `json:"dynasty,omitempty"`
	Type    string `json:"type,omitempty"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

type SearchResult struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Dynasty    string    `json:"dynasty"`
	AuthorName string    `json:"author_name"`
	Type       string    `json:"type"`
	MatchScore float64   `json:"match_score"`
}

type SearchResponse struct {
	Poems      []SearchResult `json:"poems"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

type AnalysisRequest struct {
	PoemTitle   string `json:"poem_title"`
	PoemAuthor  string `json:"poem_author"`
	PoemContent string `json:"poem_content"`
}

type AnalysisResponse struct {
	Analysis string `json:"analysis"`
	Model    string `json:"model"`
	Cached   bool   `json:"cached"`
	Note     string `json:"note,omitempty"`
}

// AnalysisJob is queued by poem detail views to warm the analysis cache.
type AnalysisJob struct {
	ID         uuid.UUID       `json:"id"`
	PoemID     uuid.UUID       `json:"poem_id"`
	Request    AnalysisRequest `json:"request"`
	RetryCount int             `json:"retry_count"`
}

type AuthorListResponse struct {
	Authors    []*Author `json:"authors"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"total_pages"`
}
