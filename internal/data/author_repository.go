package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AuthorRepository handles database operations for authors.
type AuthorRepository struct {
	db *sqlx.DB
}

// NewAuthorRepository creates a new AuthorRepository.
func NewAuthorRepository(db *sqlx.DB) *AuthorRepository {
	return &AuthorRepository{db: db}
}

// GetAll retrieves all authors ordered by name.
func (r *AuthorRepository) GetAll(ctx context.Context) ([]*Author, error) {
	var authors []*Author
	query := `SELECT id, name, slug, twitter_username, bio, created_at, updated_at FROM authors ORDER BY name`
	if err := r.db.SelectContext(ctx, &authors, query); err != nil {
		return nil, fmt.Errorf("failed to get all authors: %w", err)
	}
	return authors, nil
}

// GetByID finds an author by ID.
func (r *AuthorRepository) GetByID(ctx context.Context, id int64) (*Author, error) {
	var author Author
	query := `SELECT id, name, slug, twitter_username, bio, created_at, updated_at FROM authors WHERE id = ?`
	if err := r.db.GetContext(ctx, &author, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get author by id: %w", err)
	}
	return &author, nil
}

// SlugExists reports whether another author already holds the given slug.
func (r *AuthorRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM authors WHERE slug = ? AND id <> ?`
	if err := r.db.GetContext(ctx, &count, query, slug, excludeID); err != nil {
		return false, fmt.Errorf("failed to check author slug: %w", err)
	}
	return count > 0, nil
}

// Save creates a new author and returns its ID.
func (r *AuthorRepository) Save(ctx context.Context, author *Author) (int64, error) {
	now := time.Now().UTC()
	author.CreatedAt = now
	author.UpdatedAt = now
	query := `INSERT INTO authors (name, slug, twitter_username, bio, created_at, updated_at)
		VALUES (:name, :slug, :twitter_username, :bio, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, author)
	if err != nil {
		return 0, fmt.Errorf("failed to insert author: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get author id: %w", err)
	}
	author.ID = id
	return id, nil
}
