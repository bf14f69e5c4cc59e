package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shijian-backend/internal/models"
)

type PoemRepo struct {
	pool *pgxpool.Pool
}

func NewPoemRepo(pool *pgxpool.Pool) *PoemRepo {
	return &PoemRepo{pool: pool}
}

const poemColumns = `p.id, p.title, p.content, p.dynasty, p.type, p.themes, p.author_id,
	p.created_at, p.updated_at, a.name, a.dynasty`

const poemFrom = `FROM poems p LEFT JOIN authors a ON a.id = p.author_id`

func scanPoem(row pgx.Row) (*models.Poem, error) {
	p := &models.Poem{}
	var authorID *uuid.UUID
	var authorName, authorDynasty *string

	err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.Dynasty, &p.Type, &p.Themes, &authorID,
		&p.CreatedAt, &p.UpdatedAt, &authorName, &authorDynasty,
	)
	if err != nil {
		return nil, err
	}

	if authorID != nil {
		p.AuthorID = *authorID
	}
	if authorName != nil {
		p.Author = &models.Author{ID: p.AuthorID, Name: *authorName}
		if authorDynasty != nil {
			p.Author.Dynasty = *authorDynasty
		}
	}
	return p, nil
}

func collectPoems(rows pgx.Rows) ([]*models.Poem, error) {
	defer rows.Close()

	var poems []*models.Poem
	for rows.Next() {
		p, err := scanPoem(rows)
		if err != nil {
			return nil, err
		}
		poems = append(poems, p)
	}
	return poems, rows.Err()
}

// Search matches query against title, content and author name, filtered by
// dynasty and type. Returns one page of poems, newest first, and the total.
func (r *PoemRepo) Search(ctx context.Context, query, dynasty, poemType string, limit, offset int) ([]*models.Poem, int, error) {
	var args []interface{}
	argIdx := 1

	where := "WHERE TRUE"

	if query != "" {
		where += fmt.Sprintf(" AND (p.title ILIKE $%d OR p.content ILIKE $%d OR a.name ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+query+"%")
		argIdx++
	}
	if dynasty != "" {
		where += fmt.Sprintf(" AND p.dynasty = $%d", argIdx)
		args = append(args, dynasty)
		argIdx++
	}
	if poemType != "" {
		where += fmt.Sprintf(" AND p.type = $%d", argIdx)
		args = append(args, poemType)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) " + poemFrom + " " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sqlQuery := fmt.Sprintf(`SELECT %s %s %s ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`,
		poemColumns, poemFrom, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	poems, err := collectPoems(rows)
	if err != nil {
		return nil, 0, err
	}
	return poems, total, nil
}

// GetByID loads a poem with its author and appreciations.
func (r *PoemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Poem, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE p.id = $1", poemColumns, poemFrom)
	p, err := scanPoem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, poem_id, content, source, created_at FROM appreciations WHERE poem_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a := &models.Appreciation{}
		if err := rows.Scan(&a.ID, &a.PoemID, &a.Content, &a.Source, &a.CreatedAt); err != nil {
			return nil, err
		}
		p.Appreciations = append(p.Appreciations, a)
	}
	return p, rows.Err()
}

func (r *PoemRepo) IncrementViews(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE poems SET view_count = view_count + 1 WHERE id = $1", id)
	return err
}

func (r *PoemRepo) Popular(ctx context.Context, limit int) ([]*models.Poem, error) {
	query := fmt.Sprintf("SELECT %s %s ORDER BY p.view_count DESC, p.created_at DESC LIMIT $1", poemColumns, poemFrom)
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return collectPoems(rows)
}

func (r *PoemRepo) ListByAuthor(ctx context.Context, authorID uuid.UUID, limit int) ([]*models.Poem, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE p.author_id = $1 ORDER BY p.created_at DESC LIMIT $2", poemColumns, poemFrom)
	rows, err := r.pool.Query(ctx, query, authorID, limit)
	if err != nil {
		return nil, err
	}
	return collectPoems(rows)
}

// Related returns poems by the same author or sharing a theme.
func (r *PoemRepo) Related(ctx context.Context, poem *models.Poem, limit int) ([]*models.Poem, error) {
	themes := poem.Themes
	if themes == nil {
		themes = []string{}
	}
	query := fmt.Sprintf(`SELECT %s %s
		WHERE p.id <> $1 AND (p.author_id = $2 OR p.themes && $3)
		ORDER BY (p.author_id = $2) DESC, p.created_at DESC LIMIT $4`, poemColumns, poemFrom)
	rows, err := r.pool.Query(ctx, query, poem.ID, poem.AuthorID, themes, limit)
	if err != nil {
		return nil, err
	}
	return collectPoems(rows)
}

func (r *PoemRepo) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf("SELECT DISTINCT %s FROM poems WHERE %s <> '' ORDER BY %s", column, column, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (r *PoemRepo) Dynasties(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "dynasty")
}

func (r *PoemRepo) Types(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "type")
}

// CreateIfAbsent inserts poem unless a poem with the same title and author
// exists. Reports whether a row was written.
func (r *PoemRepo) CreateIfAbsent(ctx context.Context, poem *models.Poem) (bool, error) {
	if poem.ID == uuid.Nil {
		poem.ID = uuid.New()
	}
	if poem.Themes == nil {
		poem.Themes = []string{}
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO poems (id, title, content, dynasty, type, themes, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (title, author_id) DO NOTHING`,
		poem.ID, poem.Title, poem.Content, poem.Dynasty, poem.Type, poem.Themes, poem.AuthorID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PoemRepo) AddAppreciation(ctx context.Context, a *models.Appreciation) error {
	a.ID = uuid.New()
	return r.pool.QueryRow(ctx,
		"INSERT INTO appreciations (id, poem_id, content, source) VALUES ($1, $2, $3, $4) RETURNING created_at",
		a.ID, a.PoemID, a.Content, a.Source,
	).Scan(&a.CreatedAt)
}
