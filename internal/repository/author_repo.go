package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shijian-backend/internal/models"
)

type AuthorRepo struct {
	pool *pgxpool.Pool
}

func NewAuthorRepo(pool *pgxpool.Pool) *AuthorRepo {
	return &AuthorRepo{pool: pool}
}

const authorColumns = "id, name, dynasty, introduction, birth_year, death_year, created_at"

func scanAuthor(row pgx.Row) (*models.Author, error) {
	a := &models.Author{}
	err := row.Scan(&a.ID, &a.Name, &a.Dynasty, &a.Introduction, &a.BirthYear, &a.DeathYear, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AuthorRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Author, error) {
	return scanAuthor(r.pool.QueryRow(ctx, "SELECT "+authorColumns+" FROM authors WHERE id = $1", id))
}

func (r *AuthorRepo) List(ctx context.Context, dynasty string, limit, offset int) ([]*models.Author, int, error) {
	var args []interface{}
	argIdx := 1

	where := ""
	if dynasty != "" {
		where = fmt.Sprintf("WHERE dynasty = $%d", argIdx)
		args = append(args, dynasty)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM authors "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM authors %s ORDER BY name LIMIT $%d OFFSET $%d",
		authorColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var authors []*models.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, 0, err
		}
		authors = append(authors, a)
	}
	return authors, total, rows.Err()
}

// FindOrCreate returns the newest author with name and dynasty, creating
// one when none exists.
func (r *AuthorRepo) FindOrCreate(ctx context.Context, name, dynasty string) (*models.Author, bool, error) {
	a, err := scanAuthor(r.pool.QueryRow(ctx,
		"SELECT "+authorColumns+" FROM authors WHERE name = $1 AND dynasty = $2 ORDER BY created_at DESC LIMIT 1",
		name, dynasty))
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	a = &models.Author{ID: uuid.New(), Name: name, Dynasty: dynasty}
	err = r.pool.QueryRow(ctx,
		"INSERT INTO authors (id, name, dynasty) VALUES ($1, $2, $3) RETURNING created_at",
		a.ID, a.Name, a.Dynasty,
	).Scan(&a.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// DuplicateNames lists author names held by more than one record.
func (r *AuthorRepo) DuplicateNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT name FROM authors GROUP BY name HAVING COUNT(*) > 1 ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// MergeResult describes one collapsed group of same-named authors.
type MergeResult struct {
	Name      string
	KeptID    uuid.UUID
	RemovedID []uuid.UUID
	Moved     int64
	Dropped   int64
}

// MergeByName keeps the newest author named name, moves every poem of the
// other records onto it and deletes them. With dryRun the transaction is
// rolled back after counting.
func (r *AuthorRepo) MergeByName(ctx context.Context, name string, dryRun bool) (*MergeResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge of %q: %w", name, err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, "SELECT id FROM authors WHERE name = $1 ORDER BY created_at DESC, id FOR UPDATE", name)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Name: name}
	if len(ids) < 2 {
		if len(ids) == 1 {
			result.KeptID = ids[0]
		}
		return result, nil
	}
	result.KeptID = ids[0]
	result.RemovedID = ids[1:]

	// Same-titled poems across the group would collide on (title, author_id)
	// once merged. Keep one per title, preferring the kept author's copy.
	tag, err := tx.Exec(ctx, `
		DELETE FROM poems WHERE author_id = ANY($2) AND id NOT IN (
			SELECT DISTINCT ON (title) id FROM poems
			WHERE author_id = $1 OR author_id = ANY($2)
			ORDER BY title, (author_id = $1) DESC, created_at DESC
		)`, result.KeptID, result.RemovedID)
	if err != nil {
		return nil, fmt.Errorf("failed to drop duplicate poems of %q: %w", name, err)
	}
	result.Dropped = tag.RowsAffected()

	tag, err = tx.Exec(ctx, "UPDATE poems SET author_id = $1, updated_at = NOW() WHERE author_id = ANY($2)", result.KeptID, result.RemovedID)
	if err != nil {
		return nil, fmt.Errorf("failed to reassign poems of %q: %w", name, err)
	}
	result.Moved = tag.RowsAffected()

	if _, err := tx.Exec(ctx, "DELETE FROM authors WHERE id = ANY($1)", result.RemovedID); err != nil {
		return nil, fmt.Errorf("failed to delete duplicates of %q: %w", name, err)
	}

	if dryRun {
		return result, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit merge of %q: %w", name, err)
	}
	return result, nil
}
