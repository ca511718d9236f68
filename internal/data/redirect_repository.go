package data

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RedirectRepository reads the legacy URL redirect table.
type RedirectRepository struct {
	db *sqlx.DB
}

// NewRedirectRepository creates a new RedirectRepository.
func NewRedirectRepository(db *sqlx.DB) *RedirectRepository {
	return &RedirectRepository{db: db}
}

// GetAll returns every legacy redirect. The set is small and static, so the
// router loads it once at startup.
func (r *RedirectRepository) GetAll(ctx context.Context) ([]*LegacyRedirect, error) {
	var redirects []*LegacyRedirect
	query := `SELECT id, old_path, new_url FROM legacy_redirects ORDER BY id`
	if err := r.db.SelectContext(ctx, &redirects, query); err != nil {
		return nil, fmt.Errorf("failed to list legacy redirects: %w", err)
	}
	return redirects, nil
}
