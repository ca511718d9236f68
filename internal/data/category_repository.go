package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CategoryRepository handles database operations for categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Valid sort fields for ListWithArticleCounts.
var categorySortFields = map[string]string{
	"name":          "name",
	"is_primary":    "is_primary",
	"article_count": "article_count",
}

// ErrInvalidSortField is returned when a caller asks for a sort column that
// is not whitelisted.
var ErrInvalidSortField = errors.New("invalid sort field")

// ListWithArticleCounts returns categories that have at least one ready
// article, annotated with the count. primaryOnly restricts the result to
// categories flagged primary.
func (r *CategoryRepository) ListWithArticleCounts(ctx context.Context, primaryOnly bool, sortBy string) ([]*Category, error) {
	column, ok := categorySortFields[sortBy]
	if !ok {
		return nil, ErrInvalidSortField
	}

	query := `SELECT c.id, c.name, c.slug, c.is_primary, c.parent_id, c.created_at, c.updated_at,
		COUNT(DISTINCT a.id) AS article_count
		FROM categories c
		JOIN article_categories ac ON ac.category_id = c.id
		JOIN articles a ON a.id = ac.article_id AND a.status = ?`
	args := []interface{}{StatusReady}
	if primaryOnly {
		query += ` WHERE c.is_primary = ?`
		args = append(args, true)
	}
	query += ` GROUP BY c.id, c.name, c.slug, c.is_primary, c.parent_id, c.created_at, c.updated_at
		HAVING COUNT(DISTINCT a.id) > 0
		ORDER BY ` + column

	var categories []*Category
	if err := r.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetAll retrieves all categories ordered by name.
func (r *CategoryRepository) GetAll(ctx context.Context) ([]*Category, error) {
	var categories []*Category
	query := `SELECT id, name, slug, is_primary, parent_id, created_at, updated_at FROM categories ORDER BY name`
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("failed to get all categories: %w", err)
	}
	return categories, nil
}

// GetByID finds a category by its ID.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*Category, error) {
	var category Category
	query := `SELECT id, name, slug, is_primary, parent_id, created_at, updated_at FROM categories WHERE id = ?`
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category by id: %w", err)
	}
	return &category, nil
}

// FindBySlug finds a category by its slug.
func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (*Category, error) {
	var category Category
	query := `SELECT id, name, slug, is_primary, parent_id, created_at, updated_at FROM categories WHERE slug = ?`
	if err := r.db.GetContext(ctx, &category, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category by slug: %w", err)
	}
	return &category, nil
}

// SlugExists reports whether another category already holds the given slug.
// The check runs under a row lock so two concurrent saves cannot both claim
// the same numbered slug.
func (r *CategoryRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	query := forUpdate(r.db, `SELECT COUNT(*) FROM categories WHERE slug = ? AND id <> ?`)
	if err := tx.GetContext(ctx, &count, query, slug, excludeID); err != nil {
		return false, fmt.Errorf("failed to check category slug: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return count > 0, nil
}

// Save creates a new category and returns its ID.
func (r *CategoryRepository) Save(ctx context.Context, category *Category) (int64, error) {
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	query := `INSERT INTO categories (name, slug, is_primary, parent_id, created_at, updated_at)
		VALUES (:name, :slug, :is_primary, :parent_id, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, category)
	if err != nil {
		return 0, fmt.Errorf("failed to insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get category id: %w", err)
	}
	category.ID = id
	return id, nil
}

// Update persists changes to an existing category.
func (r *CategoryRepository) Update(ctx context.Context, category *Category) error {
	category.UpdatedAt = time.Now().UTC()
	query := `UPDATE categories SET name = :name, slug = :slug, is_primary = :is_primary,
		parent_id = :parent_id, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, category)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
