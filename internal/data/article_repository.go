package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// MaxRelatedArticles caps the number of outgoing related-article edges per
// source article.
const MaxRelatedArticles = 3

const articleColumns = `id, title, content, summary, gpt_summary, acknowledgement, slug, status,
	scheduled_publish_time, views, primary_category_id, thumb_id, is_sponsored,
	sponsor_color, sponsor_text_color, table_of_contents, created_at, updated_at`

// SQLArticleRepository is a concrete implementation of the article repository
// using sqlx.
type SQLArticleRepository struct {
	db *sqlx.DB
}

// NewSQLArticleRepository creates a new SQLArticleRepository.
func NewSQLArticleRepository(db *sqlx.DB) *SQLArticleRepository {
	return &SQLArticleRepository{db: db}
}

// Create inserts a new article.
func (r *SQLArticleRepository) Create(ctx context.Context, article *Article) error {
	query := `INSERT INTO articles (id, title, content, summary, gpt_summary, acknowledgement, slug, status,
		scheduled_publish_time, views, primary_category_id, thumb_id, is_sponsored,
		sponsor_color, sponsor_text_color, table_of_contents, created_at, updated_at)
		VALUES (:id, :title, :content, :summary, :gpt_summary, :acknowledgement, :slug, :status,
		:scheduled_publish_time, :views, :primary_category_id, :thumb_id, :is_sponsored,
		:sponsor_color, :sponsor_text_color, :table_of_contents, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, article); err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// Update persists changes to an existing article.
func (r *SQLArticleRepository) Update(ctx context.Context, article *Article) error {
	query := `UPDATE articles SET title = :title, content = :content, summary = :summary,
		gpt_summary = :gpt_summary, acknowledgement = :acknowledgement, slug = :slug, status = :status,
		scheduled_publish_time = :scheduled_publish_time, primary_category_id = :primary_category_id,
		thumb_id = :thumb_id, is_sponsored = :is_sponsored, sponsor_color = :sponsor_color,
		sponsor_text_color = :sponsor_text_color, table_of_contents = :table_of_contents,
		updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, article)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
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

// GetByID retrieves a single article by its UUID.
func (r *SQLArticleRepository) GetByID(ctx context.Context, id string) (*Article, error) {
	var article Article
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = ?`
	if err := r.db.GetContext(ctx, &article, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article by id: %w", err)
	}
	return &article, nil
}

// GetBySlug retrieves a single article by its current slug.
func (r *SQLArticleRepository) GetBySlug(ctx context.Context, slug string) (*Article, error) {
	var article Article
	query := `SELECT ` + articleColumns + ` FROM articles WHERE slug = ?`
	if err := r.db.GetContext(ctx, &article, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article by slug: %w", err)
	}
	return &article, nil
}

// GetByOldSlug resolves a retired slug through the history table and returns
// the article that now owns it.
func (r *SQLArticleRepository) GetByOldSlug(ctx context.Context, slug string) (*Article, error) {
	var article Article
	query := `SELECT ` + joinColumns("a") + ` FROM articles a
		JOIN article_slug_history h ON h.article_id = a.id
		WHERE h.old_slug = ?`
	if err := r.db.GetContext(ctx, &article, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve old slug: %w", err)
	}
	return &article, nil
}

// SlugExists reports whether any article other than excludeID already holds
// the given slug.
func (r *SQLArticleRepository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM articles WHERE slug = ? AND id <> ?`
	if err := r.db.GetContext(ctx, &count, query, slug, excludeID); err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return count > 0, nil
}

// InsertSlugHistory archives a slug the article no longer uses. The insert is
// idempotent on the (article, old_slug) pair.
func (r *SQLArticleRepository) InsertSlugHistory(ctx context.Context, articleID, oldSlug string) error {
	var count int
	existsQuery := `SELECT COUNT(*) FROM article_slug_history WHERE article_id = ? AND old_slug = ?`
	if err := r.db.GetContext(ctx, &count, existsQuery, articleID, oldSlug); err != nil {
		return fmt.Errorf("failed to check slug history: %w", err)
	}
	if count > 0 {
		return nil
	}
	query := `INSERT INTO article_slug_history (article_id, old_slug, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, articleID, oldSlug, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert slug history: %w", err)
	}
	return nil
}

// DeleteSlugHistory removes a history pair. Called when an article re-acquires
// one of its own retired slugs, so the history row never shadows a live slug.
func (r *SQLArticleRepository) DeleteSlugHistory(ctx context.Context, articleID, slug string) error {
	query := `DELETE FROM article_slug_history WHERE article_id = ? AND old_slug = ?`
	if _, err := r.db.ExecContext(ctx, query, articleID, slug); err != nil {
		return fmt.Errorf("failed to delete slug history: %w", err)
	}
	return nil
}

// SlugHistory returns all archived slugs for an article.
func (r *SQLArticleRepository) SlugHistory(ctx context.Context, articleID string) ([]*ArticleSlugHistory, error) {
	var rows []*ArticleSlugHistory
	query := `SELECT id, article_id, old_slug, created_at FROM article_slug_history WHERE article_id = ? ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query, articleID); err != nil {
		return nil, fmt.Errorf("failed to list slug history: %w", err)
	}
	return rows, nil
}

// IncrementViews atomically bumps the view counter and returns the new value.
func (r *SQLArticleRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	if _, err := r.db.ExecContext(ctx, `UPDATE articles SET views = views + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	var views int64
	if err := r.db.GetContext(ctx, &views, `SELECT views FROM articles WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to read views: %w", err)
	}
	return views, nil
}

// ListReady returns a page of ready articles ordered by scheduled publish
// time descending.
func (r *SQLArticleRepository) ListReady(ctx context.Context, limit, offset int) ([]*Article, error) {
	var articles []*Article
	query := `SELECT ` + articleColumns + ` FROM articles WHERE status = ?
		ORDER BY scheduled_publish_time DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &articles, query, StatusReady, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list ready articles: %w", err)
	}
	return articles, nil
}

// CountReady returns the number of ready articles.
func (r *SQLArticleRepository) CountReady(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM articles WHERE status = ?`, StatusReady); err != nil {
		return 0, fmt.Errorf("failed to count ready articles: %w", err)
	}
	return count, nil
}

// ListReadyByCategorySlug returns ready articles attached to the category.
func (r *SQLArticleRepository) ListReadyByCategorySlug(ctx context.Context, slug string) ([]*Article, error) {
	var articles []*Article
	query := `SELECT ` + joinColumns("a") + ` FROM articles a
		JOIN article_categories ac ON ac.article_id = a.id
		JOIN categories c ON c.id = ac.category_id
		WHERE c.slug = ? AND a.status = ?
		ORDER BY a.scheduled_publish_time DESC`
	if err := r.db.SelectContext(ctx, &articles, query, slug, StatusReady); err != nil {
		return nil, fmt.Errorf("failed to list articles by category: %w", err)
	}
	return articles, nil
}

// ListReadyByPrimaryCategorySlug returns a page of ready articles attached to
// a category that is marked primary.
func (r *SQLArticleRepository) ListReadyByPrimaryCategorySlug(ctx context.Context, slug string, limit, offset int) ([]*Article, error) {
	var articles []*Article
	query := `SELECT ` + joinColumns("a") + ` FROM articles a
		JOIN article_categories ac ON ac.article_id = a.id
		JOIN categories c ON c.id = ac.category_id
		WHERE c.slug = ? AND c.is_primary = ? AND a.status = ?
		ORDER BY a.scheduled_publish_time DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &articles, query, slug, true, StatusReady, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list articles by primary category: %w", err)
	}
	return articles, nil
}

// ListByAuthor returns all articles written by the given author.
func (r *SQLArticleRepository) ListByAuthor(ctx context.Context, authorID int64) ([]*Article, error) {
	var articles []*Article
	query := `SELECT ` + joinColumns("a") + ` FROM articles a
		JOIN article_authors aa ON aa.article_id = a.id
		WHERE aa.author_id = ?
		ORDER BY a.scheduled_publish_time DESC`
	if err := r.db.SelectContext(ctx, &articles, query, authorID); err != nil {
		return nil, fmt.Errorf("failed to list articles by author: %w", err)
	}
	return articles, nil
}

// PublishDue flips every draft article whose scheduled publish time has
// elapsed to ready and returns the IDs that changed. Updating already-ready
// rows is a no-op by construction, so the sweep can run as often as it likes.
func (r *SQLArticleRepository) PublishDue(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	selectQuery := forUpdate(r.db, `SELECT id FROM articles
		WHERE status = ? AND scheduled_publish_time IS NOT NULL AND scheduled_publish_time <= ?`)
	if err := tx.SelectContext(ctx, &ids, selectQuery, StatusDraft, now); err != nil {
		return nil, fmt.Errorf("failed to select due articles: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	updateQuery, args, err := sqlx.In(`UPDATE articles SET status = ? WHERE id IN (?)`, StatusReady, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build publish query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind(updateQuery), args...); err != nil {
		return nil, fmt.Errorf("failed to publish due articles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish transaction: %w", err)
	}
	return ids, nil
}

// SetCategories replaces the category set of an article.
func (r *SQLArticleRepository) SetCategories(ctx context.Context, articleID string, categoryIDs []int64) error {
	return r.replaceJoinRows(ctx, "article_categories", "category_id", articleID, categoryIDs)
}

// SetAuthors replaces the author set of an article.
func (r *SQLArticleRepository) SetAuthors(ctx context.Context, articleID string, authorIDs []int64) error {
	return r.replaceJoinRows(ctx, "article_authors", "author_id", articleID, authorIDs)
}

func (r *SQLArticleRepository) replaceJoinRows(ctx context.Context, table, column, articleID string, ids []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE article_id = ?`, articleID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for _, id := range ids {
		query := `INSERT INTO ` + table + ` (article_id, ` + column + `) VALUES (?, ?)`
		if _, err := tx.ExecContext(ctx, query, articleID, id); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// CategoriesFor returns the categories attached to an article.
func (r *SQLArticleRepository) CategoriesFor(ctx context.Context, articleID string) ([]*Category, error) {
	var categories []*Category
	query := `SELECT c.id, c.name, c.slug, c.is_primary, c.parent_id, c.created_at, c.updated_at
		FROM categories c JOIN article_categories ac ON ac.category_id = c.id
		WHERE ac.article_id = ? ORDER BY c.id`
	if err := r.db.SelectContext(ctx, &categories, query, articleID); err != nil {
		return nil, fmt.Errorf("failed to get article categories: %w", err)
	}
	return categories, nil
}

// AuthorsFor returns the authors attached to an article.
func (r *SQLArticleRepository) AuthorsFor(ctx context.Context, articleID string) ([]*Author, error) {
	var authors []*Author
	query := `SELECT a.id, a.name, a.slug, a.twitter_username, a.bio, a.created_at, a.updated_at
		FROM authors a JOIN article_authors aa ON aa.author_id = a.id
		WHERE aa.article_id = ? ORDER BY a.id`
	if err := r.db.SelectContext(ctx, &authors, query, articleID); err != nil {
		return nil, fmt.Errorf("failed to get article authors: %w", err)
	}
	return authors, nil
}

// AddRelatedArticle inserts a single outgoing edge after validating the graph
// invariants. The source's existing edges are locked for the duration of the
// transaction so two concurrent inserts cannot both pass the cap check.
func (r *SQLArticleRepository) AddRelatedArticle(ctx context.Context, fromID, toID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.addRelatedArticleTx(ctx, tx, fromID, toID); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceRelatedArticles swaps the full outgoing edge set of an article,
// validating every new edge under the same lock.
func (r *SQLArticleRepository) ReplaceRelatedArticles(ctx context.Context, fromID string, toIDs []string) error {
	if len(toIDs) > MaxRelatedArticles {
		return ErrTooManyRelated
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the current edge set before touching it.
	var existing []string
	lockQuery := forUpdate(r.db, `SELECT to_article_id FROM related_articles WHERE from_article_id = ?`)
	if err := tx.SelectContext(ctx, &existing, lockQuery, fromID); err != nil {
		return fmt.Errorf("failed to lock related articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM related_articles WHERE from_article_id = ?`, fromID); err != nil {
		return fmt.Errorf("failed to clear related articles: %w", err)
	}
	for _, toID := range toIDs {
		if err := r.addRelatedArticleTx(ctx, tx, fromID, toID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLArticleRepository) addRelatedArticleTx(ctx context.Context, tx *sqlx.Tx, fromID, toID string) error {
	if fromID == toID {
		return ErrSelfReference
	}

	// Lock the source's outgoing edges, then run the cap and duplicate checks
	// against the locked set.
	var existing []string
	lockQuery := forUpdate(r.db, `SELECT to_article_id FROM related_articles WHERE from_article_id = ?`)
	if err := tx.SelectContext(ctx, &existing, lockQuery, fromID); err != nil {
		return fmt.Errorf("failed to lock related articles: %w", err)
	}
	if len(existing) >= MaxRelatedArticles {
		return ErrTooManyRelated
	}
	for _, id := range existing {
		if id == toID {
			return ErrDuplicateEdge
		}
	}

	// Forbid the direct reverse pair. Longer cycles (A->B->C->A) are allowed.
	var reverse int
	reverseQuery := `SELECT COUNT(*) FROM related_articles WHERE from_article_id = ? AND to_article_id = ?`
	if err := tx.GetContext(ctx, &reverse, reverseQuery, toID, fromID); err != nil {
		return fmt.Errorf("failed to check reverse edge: %w", err)
	}
	if reverse > 0 {
		return ErrReverseEdge
	}

	var status string
	if err := tx.GetContext(ctx, &status, `SELECT status FROM articles WHERE id = ?`, toID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTargetNotFound
		}
		return fmt.Errorf("failed to check target article: %w", err)
	}
	if status != StatusReady {
		return ErrTargetNotReady
	}

	insert := `INSERT INTO related_articles (from_article_id, to_article_id) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, insert, fromID, toID); err != nil {
		return fmt.Errorf("failed to insert related article: %w", err)
	}
	return nil
}

// RelatedArticles returns the manually curated edges of an article, ready
// targets only, most recently scheduled first.
func (r *SQLArticleRepository) RelatedArticles(ctx context.Context, articleID string) ([]*Article, error) {
	var articles []*Article
	query := `SELECT ` + joinColumns("a") + ` FROM articles a
		JOIN related_articles ra ON ra.to_article_id = a.id
		WHERE ra.from_article_id = ? AND a.status = ?
		ORDER BY a.scheduled_publish_time DESC
		LIMIT ?`
	if err := r.db.SelectContext(ctx, &articles, query, articleID, StatusReady, MaxRelatedArticles); err != nil {
		return nil, fmt.Errorf("failed to get related articles: %w", err)
	}
	return articles, nil
}

// FallbackRelatedArticles returns up to 3 of the most recently scheduled
// ready articles sharing any category with the given one, excluding itself.
func (r *SQLArticleRepository) FallbackRelatedArticles(ctx context.Context, articleID string) ([]*Article, error) {
	var articles []*Article
	query := `SELECT DISTINCT ` + joinColumns("a") + ` FROM articles a
		JOIN article_categories ac ON ac.article_id = a.id
		WHERE a.status = ? AND a.id <> ?
		AND ac.category_id IN (SELECT category_id FROM article_categories WHERE article_id = ?)
		ORDER BY a.scheduled_publish_time DESC
		LIMIT ?`
	if err := r.db.SelectContext(ctx, &articles, query, StatusReady, articleID, articleID, MaxRelatedArticles); err != nil {
		return nil, fmt.Errorf("failed to get fallback related articles: %w", err)
	}
	return articles, nil
}

// joinColumns prefixes the article column list with a table alias for use in
// join queries.
func joinColumns(alias string) string {
	return alias + `.id, ` + alias + `.title, ` + alias + `.content, ` + alias + `.summary, ` +
		alias + `.gpt_summary, ` + alias + `.acknowledgement, ` + alias + `.slug, ` + alias + `.status, ` +
		alias + `.scheduled_publish_time, ` + alias + `.views, ` + alias + `.primary_category_id, ` +
		alias + `.thumb_id, ` + alias + `.is_sponsored, ` + alias + `.sponsor_color, ` +
		alias + `.sponsor_text_color, ` + alias + `.table_of_contents, ` + alias + `.created_at, ` + alias + `.updated_at`
}
