package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
)

// ArticleRepository defines the interface for database operations on articles.
type ArticleRepository interface {
	Create(ctx context.Context, article *data.Article) error
	Update(ctx context.Context, article *data.Article) error
	GetByID(ctx context.Context, id string) (*data.Article, error)
	GetBySlug(ctx context.Context, slug string) (*data.Article, error)
	GetByOldSlug(ctx context.Context, slug string) (*data.Article, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	InsertSlugHistory(ctx context.Context, articleID, oldSlug string) error
	DeleteSlugHistory(ctx context.Context, articleID, slug string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	ListReady(ctx context.Context, limit, offset int) ([]*data.Article, error)
	CountReady(ctx context.Context) (int64, error)
	ListReadyByCategorySlug(ctx context.Context, slug string) ([]*data.Article, error)
	ListReadyByPrimaryCategorySlug(ctx context.Context, slug string, limit, offset int) ([]*data.Article, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]*data.Article, error)
	PublishDue(ctx context.Context, now time.Time) ([]string, error)
	SetCategories(ctx context.Context, articleID string, categoryIDs []int64) error
	SetAuthors(ctx context.Context, articleID string, authorIDs []int64) error
	CategoriesFor(ctx context.Context, articleID string) ([]*data.Category, error)
	AuthorsFor(ctx context.Context, articleID string) ([]*data.Author, error)
	ReplaceRelatedArticles(ctx context.Context, fromID string, toIDs []string) error
	RelatedArticles(ctx context.Context, articleID string) ([]*data.Article, error)
	FallbackRelatedArticles(ctx context.Context, articleID string) ([]*data.Article, error)
}

// SearchMirror mirrors entity state into the hosted search index. A nil
// mirror disables search entirely; failures are logged, never surfaced to
// the caller.
type SearchMirror interface {
	IndexArticle(ctx context.Context, article *data.Article, categories []*data.Category, authors []*data.Author) error
	DeleteArticle(ctx context.Context, id string) error
}

// ArticleInput carries the desired state of an article through create and
// update. Nil pointer fields were not supplied: create treats them as zero
// values, update leaves the stored values untouched. A nil association slice
// likewise means "leave unchanged"; an empty one clears the association.
type ArticleInput struct {
	Title                *string
	Content              *string
	Summary              *string
	GPTSummary           *string
	Acknowledgement      *string
	Status               string
	ScheduledPublishTime *time.Time
	ThumbID              *string
	IsSponsored          *bool
	SponsorColor         *string
	SponsorTextColor     *string
	PrimaryCategoryID    *int64
	CategoryIDs          []int64
	AuthorIDs            []int64
	RelatedArticleIDs    []string
}

// ArticleService provides business logic for managing articles: slug
// assignment and history, the related-article graph, scheduled publishing,
// and table-of-contents extraction.
type ArticleService struct {
	repo      ArticleRepository
	search    SearchMirror
	sanitizer *bluemonday.Policy
	log       logger.Logger
	now       func() time.Time
}

// NewArticleService creates a new ArticleService. search may be nil.
func NewArticleService(repo ArticleRepository, search SearchMirror, log logger.Logger) *ArticleService {
	// UGC policy plus the pieces the editor produces: headings carry the
	// anchor ids the table of contents links to.
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	sanitizer.AllowAttrs("class").OnElements("pre", "code", "span", "div")

	return &ArticleService{
		repo:      repo,
		search:    search,
		sanitizer: sanitizer,
		log:       log,
		now:       time.Now,
	}
}

// Create builds a new article from the input and persists it.
func (s *ArticleService) Create(ctx context.Context, input ArticleInput) (*data.Article, error) {
	now := s.now().UTC()
	article := &data.Article{
		ID:                   uuid.NewString(),
		Title:                stringValue(input.Title),
		Summary:              stringValue(input.Summary),
		GPTSummary:           stringValue(input.GPTSummary),
		Acknowledgement:      stringValue(input.Acknowledgement),
		Status:               data.StatusDraft,
		ScheduledPublishTime: input.ScheduledPublishTime,
		ThumbID:              stringValue(input.ThumbID),
		IsSponsored:          input.IsSponsored != nil && *input.IsSponsored,
		SponsorColor:         stringValue(input.SponsorColor),
		SponsorTextColor:     stringValue(input.SponsorTextColor),
		PrimaryCategoryID:    input.PrimaryCategoryID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if input.Status != "" {
		article.Status = input.Status
	}
	article.Content = s.sanitizer.Sanitize(stringValue(input.Content))

	uniqueSlug, err := s.generateUniqueSlug(ctx, article.Title, article.ID)
	if err != nil {
		return nil, err
	}
	article.Slug = uniqueSlug

	s.applyContentDerivedFields(article)
	s.applyScheduledPublish(article)
	applyPrimaryCategoryDefault(article, input.CategoryIDs)

	if err := s.repo.Create(ctx, article); err != nil {
		return nil, err
	}
	if err := s.applyAssociations(ctx, article.ID, input); err != nil {
		return nil, err
	}

	s.mirrorToSearch(ctx, article)
	return article, nil
}

// Update applies the input to an existing article. Omitted fields keep their
// stored values. The slug is recomputed only when the title changed or the
// stored slug is empty; the vacated slug is archived so old URLs keep
// resolving.
func (s *ArticleService) Update(ctx context.Context, id string, input ArticleInput) (*data.Article, error) {
	// Re-read the persisted row so title-change detection compares against
	// what is actually stored, not what the caller believes is stored.
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	article := *existing
	if input.Title != nil {
		article.Title = *input.Title
	}
	if input.Content != nil {
		article.Content = s.sanitizer.Sanitize(*input.Content)
	}
	if input.Summary != nil {
		article.Summary = *input.Summary
	}
	if input.GPTSummary != nil {
		article.GPTSummary = *input.GPTSummary
	}
	if input.Acknowledgement != nil {
		article.Acknowledgement = *input.Acknowledgement
	}
	if input.ScheduledPublishTime != nil {
		article.ScheduledPublishTime = input.ScheduledPublishTime
	}
	if input.ThumbID != nil {
		article.ThumbID = *input.ThumbID
	}
	if input.IsSponsored != nil {
		article.IsSponsored = *input.IsSponsored
	}
	if input.SponsorColor != nil {
		article.SponsorColor = *input.SponsorColor
	}
	if input.SponsorTextColor != nil {
		article.SponsorTextColor = *input.SponsorTextColor
	}
	article.UpdatedAt = s.now().UTC()
	if input.Status != "" {
		article.Status = input.Status
	}
	if input.PrimaryCategoryID != nil {
		article.PrimaryCategoryID = input.PrimaryCategoryID
	}
	// Ready articles never revert to draft.
	if existing.Status == data.StatusReady {
		article.Status = data.StatusReady
	}

	if existing.Title != article.Title || article.Slug == "" {
		uniqueSlug, err := s.generateUniqueSlug(ctx, article.Title, article.ID)
		if err != nil {
			return nil, err
		}
		article.Slug = uniqueSlug
	}
	if existing.Slug != "" && existing.Slug != article.Slug {
		if err := s.repo.InsertSlugHistory(ctx, article.ID, existing.Slug); err != nil {
			return nil, err
		}
		// If the article took back a slug it held before, drop the stale
		// history row so lookups resolve to the live slug directly.
		if err := s.repo.DeleteSlugHistory(ctx, article.ID, article.Slug); err != nil {
			return nil, err
		}
	}

	s.applyContentDerivedFields(&article)
	s.applyScheduledPublish(&article)
	applyPrimaryCategoryDefault(&article, input.CategoryIDs)

	if err := s.repo.Update(ctx, &article); err != nil {
		return nil, err
	}
	if err := s.applyAssociations(ctx, article.ID, input); err != nil {
		return nil, err
	}

	s.mirrorToSearch(ctx, &article)
	return &article, nil
}

// GetByIdentifier resolves an article by UUID or slug. When the slug is
// found only in history, moved is true and the caller should answer with a
// permanent redirect to the article's current slug.
func (s *ArticleService) GetByIdentifier(ctx context.Context, identifier string) (article *data.Article, moved bool, err error) {
	if _, parseErr := uuid.Parse(identifier); parseErr == nil {
		article, err = s.repo.GetByID(ctx, identifier)
		return article, false, err
	}

	article, err = s.repo.GetBySlug(ctx, identifier)
	if err == nil {
		return article, false, nil
	}
	if err != data.ErrNotFound {
		return nil, false, err
	}

	article, err = s.repo.GetByOldSlug(ctx, identifier)
	if err != nil {
		return nil, false, err
	}
	return article, true, nil
}

// RecordView bumps the view counter and returns the new value.
func (s *ArticleService) RecordView(ctx context.Context, id string) (int64, error) {
	return s.repo.IncrementViews(ctx, id)
}

// ListReady returns a page of ready articles plus the total count.
func (s *ArticleService) ListReady(ctx context.Context, page, pageSize int) ([]*data.Article, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	articles, err := s.repo.ListReady(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountReady(ctx)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// ListByCategory returns ready articles attached to the category slug.
func (s *ArticleService) ListByCategory(ctx context.Context, categorySlug string) ([]*data.Article, error) {
	return s.repo.ListReadyByCategorySlug(ctx, categorySlug)
}

// ListByPrimaryCategory returns a page of ready articles under a primary
// category.
func (s *ArticleService) ListByPrimaryCategory(ctx context.Context, categorySlug string, page, pageSize int) ([]*data.Article, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListReadyByPrimaryCategorySlug(ctx, categorySlug, pageSize, (page-1)*pageSize)
}

// ListByAuthor returns all articles written by an author.
func (s *ArticleService) ListByAuthor(ctx context.Context, authorID int64) ([]*data.Article, error) {
	return s.repo.ListByAuthor(ctx, authorID)
}

// Related returns the articles to cross-link from the given one: the
// manually curated edges when any exist, otherwise the most recent ready
// articles sharing a category.
func (s *ArticleService) Related(ctx context.Context, articleID string) ([]*data.Article, error) {
	manual, err := s.repo.RelatedArticles(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if len(manual) > 0 {
		return manual, nil
	}
	return s.repo.FallbackRelatedArticles(ctx, articleID)
}

// CategoriesFor exposes the category set of an article for serialization.
func (s *ArticleService) CategoriesFor(ctx context.Context, articleID string) ([]*data.Category, error) {
	return s.repo.CategoriesFor(ctx, articleID)
}

// AuthorsFor exposes the author set of an article for serialization.
func (s *ArticleService) AuthorsFor(ctx context.Context, articleID string) ([]*data.Author, error) {
	return s.repo.AuthorsFor(ctx, articleID)
}

// PublishDue flips every due draft to ready and mirrors the newly published
// articles into the search index. Safe to call from both the periodic sweep
// and ad hoc; already-ready rows are untouched.
func (s *ArticleService) PublishDue(ctx context.Context) (int, error) {
	ids, err := s.repo.PublishDue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		article, err := s.repo.GetByID(ctx, id)
		if err != nil {
			s.log.Error(err, "failed to load published article for search mirror")
			continue
		}
		s.mirrorToSearch(ctx, article)
	}
	return len(ids), nil
}

// applyContentDerivedFields rebuilds the table of contents from the article
// content and rewrites the content with heading anchor ids.
func (s *ArticleService) applyContentDerivedFields(article *data.Article) {
	toc, rewritten := BuildTableOfContents(article.Content)
	article.Content = rewritten
	encoded, err := json.Marshal(toc)
	if err != nil {
		// Marshalling a tree of strings cannot realistically fail; guard
		// anyway so a bad TOC never blocks a save.
		s.log.Error(err, "failed to encode table of contents")
		encoded = []byte("[]")
	}
	article.TableOfContents = encoded
}

// applyScheduledPublish performs the draft -> ready transition when the
// scheduled publish time has elapsed. Ready articles are left alone.
func (s *ArticleService) applyScheduledPublish(article *data.Article) {
	if article.Status == data.StatusDraft &&
		article.ScheduledPublishTime != nil &&
		!s.now().UTC().Before(*article.ScheduledPublishTime) {
		article.Status = data.StatusReady
	}
}

// applyPrimaryCategoryDefault assigns the first category as primary when
// none is set.
func applyPrimaryCategoryDefault(article *data.Article, categoryIDs []int64) {
	if article.PrimaryCategoryID == nil && len(categoryIDs) > 0 {
		id := categoryIDs[0]
		article.PrimaryCategoryID = &id
	}
}

func (s *ArticleService) applyAssociations(ctx context.Context, articleID string, input ArticleInput) error {
	if input.CategoryIDs != nil {
		if err := s.repo.SetCategories(ctx, articleID, input.CategoryIDs); err != nil {
			return err
		}
	}
	if input.AuthorIDs != nil {
		if err := s.repo.SetAuthors(ctx, articleID, input.AuthorIDs); err != nil {
			return err
		}
	}
	if input.RelatedArticleIDs != nil {
		if err := s.repo.ReplaceRelatedArticles(ctx, articleID, input.RelatedArticleIDs); err != nil {
			return err
		}
	}
	return nil
}

// mirrorToSearch pushes a ready article into the search index. Mirror
// failures are logged and swallowed; search lag must never fail a write.
func (s *ArticleService) mirrorToSearch(ctx context.Context, article *data.Article) {
	if s.search == nil || article.Status != data.StatusReady {
		return
	}
	categories, err := s.repo.CategoriesFor(ctx, article.ID)
	if err != nil {
		s.log.Error(err, "failed to load categories for search mirror")
		return
	}
	authors, err := s.repo.AuthorsFor(ctx, article.ID)
	if err != nil {
		s.log.Error(err, "failed to load authors for search mirror")
		return
	}
	if err := s.search.IndexArticle(ctx, article, categories, authors); err != nil {
		s.log.Error(err, fmt.Sprintf("failed to mirror article %s to search index", article.ID))
	}
}

// generateUniqueSlug slugifies the title and appends -1, -2, ... until the
// result is unique among all articles except excludeID. An empty slugified
// base falls back to a short random token.
func (s *ArticleService) generateUniqueSlug(ctx context.Context, title, excludeID string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = randomSlugToken()
	}
	candidate := base
	for n := 1; ; n++ {
		exists, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// randomSlugToken returns a short random base for articles whose titles
// slugify to nothing.
func randomSlugToken() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
