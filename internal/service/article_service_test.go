//go:build unit

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go-research-cms/internal/config"
	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
)

func testLogger() logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "console"})
}

func strPtr(s string) *string {
	return &s
}

// fakeArticleRepo is an in-memory ArticleRepository used by the unit tests.
type fakeArticleRepo struct {
	articles map[string]*data.Article
	// history maps a retired slug to the article id that held it.
	history    map[string]string
	categories map[string][]*data.Category
	authors    map[string][]*data.Author
	related    map[string][]string
	fallback   map[string][]*data.Article
}

var _ ArticleRepository = (*fakeArticleRepo)(nil)

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{
		articles:   map[string]*data.Article{},
		history:    map[string]string{},
		categories: map[string][]*data.Category{},
		authors:    map[string][]*data.Author{},
		related:    map[string][]string{},
		fallback:   map[string][]*data.Article{},
	}
}

func (f *fakeArticleRepo) Create(ctx context.Context, article *data.Article) error {
	copied := *article
	f.articles[article.ID] = &copied
	return nil
}

func (f *fakeArticleRepo) Update(ctx context.Context, article *data.Article) error {
	if _, ok := f.articles[article.ID]; !ok {
		return data.ErrNotFound
	}
	copied := *article
	f.articles[article.ID] = &copied
	return nil
}

func (f *fakeArticleRepo) GetByID(ctx context.Context, id string) (*data.Article, error) {
	article, ok := f.articles[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	copied := *article
	return &copied, nil
}

func (f *fakeArticleRepo) GetBySlug(ctx context.Context, slug string) (*data.Article, error) {
	for _, article := range f.articles {
		if article.Slug == slug {
			copied := *article
			return &copied, nil
		}
	}
	return nil, data.ErrNotFound
}

func (f *fakeArticleRepo) GetByOldSlug(ctx context.Context, slug string) (*data.Article, error) {
	if id, ok := f.history[slug]; ok {
		return f.GetByID(ctx, id)
	}
	return nil, data.ErrNotFound
}

func (f *fakeArticleRepo) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	for id, article := range f.articles {
		if article.Slug == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeArticleRepo) InsertSlugHistory(ctx context.Context, articleID, oldSlug string) error {
	f.history[oldSlug] = articleID
	return nil
}

func (f *fakeArticleRepo) DeleteSlugHistory(ctx context.Context, articleID, slug string) error {
	if f.history[slug] == articleID {
		delete(f.history, slug)
	}
	return nil
}

func (f *fakeArticleRepo) IncrementViews(ctx context.Context, id string) (int64, error) {
	article, ok := f.articles[id]
	if !ok {
		return 0, data.ErrNotFound
	}
	article.Views++
	return article.Views, nil
}

func (f *fakeArticleRepo) ListReady(ctx context.Context, limit, offset int) ([]*data.Article, error) {
	var out []*data.Article
	for _, article := range f.articles {
		if article.Status == data.StatusReady {
			out = append(out, article)
		}
	}
	return out, nil
}

func (f *fakeArticleRepo) CountReady(ctx context.Context) (int64, error) {
	ready, _ := f.ListReady(ctx, 0, 0)
	return int64(len(ready)), nil
}

func (f *fakeArticleRepo) ListReadyByCategorySlug(ctx context.Context, slug string) ([]*data.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListReadyByPrimaryCategorySlug(ctx context.Context, slug string, limit, offset int) ([]*data.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListByAuthor(ctx context.Context, authorID int64) ([]*data.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) PublishDue(ctx context.Context, now time.Time) ([]string, error) {
	var flipped []string
	for id, article := range f.articles {
		if article.Status == data.StatusDraft &&
			article.ScheduledPublishTime != nil &&
			!article.ScheduledPublishTime.After(now) {
			article.Status = data.StatusReady
			flipped = append(flipped, id)
		}
	}
	return flipped, nil
}

func (f *fakeArticleRepo) SetCategories(ctx context.Context, articleID string, categoryIDs []int64) error {
	out := make([]*data.Category, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		out = append(out, &data.Category{ID: id})
	}
	f.categories[articleID] = out
	return nil
}

func (f *fakeArticleRepo) SetAuthors(ctx context.Context, articleID string, authorIDs []int64) error {
	out := make([]*data.Author, 0, len(authorIDs))
	for _, id := range authorIDs {
		out = append(out, &data.Author{ID: id})
	}
	f.authors[articleID] = out
	return nil
}

func (f *fakeArticleRepo) CategoriesFor(ctx context.Context, articleID string) ([]*data.Category, error) {
	return f.categories[articleID], nil
}

func (f *fakeArticleRepo) AuthorsFor(ctx context.Context, articleID string) ([]*data.Author, error) {
	return f.authors[articleID], nil
}

func (f *fakeArticleRepo) ReplaceRelatedArticles(ctx context.Context, fromID string, toIDs []string) error {
	if len(toIDs) > data.MaxRelatedArticles {
		return data.ErrTooManyRelated
	}
	for _, to := range toIDs {
		if to == fromID {
			return data.ErrSelfReference
		}
	}
	f.related[fromID] = toIDs
	return nil
}

func (f *fakeArticleRepo) RelatedArticles(ctx context.Context, articleID string) ([]*data.Article, error) {
	var out []*data.Article
	for _, id := range f.related[articleID] {
		if article, ok := f.articles[id]; ok && article.Status == data.StatusReady {
			out = append(out, article)
		}
	}
	return out, nil
}

func (f *fakeArticleRepo) FallbackRelatedArticles(ctx context.Context, articleID string) ([]*data.Article, error) {
	return f.fallback[articleID], nil
}

// mockSearchMirror records indexed and deleted article ids.
type mockSearchMirror struct {
	indexed []string
	deleted []string
	err     error
}

var _ SearchMirror = (*mockSearchMirror)(nil)

func (m *mockSearchMirror) IndexArticle(ctx context.Context, article *data.Article, categories []*data.Category, authors []*data.Author) error {
	if m.err != nil {
		return m.err
	}
	m.indexed = append(m.indexed, article.ID)
	return nil
}

func (m *mockSearchMirror) DeleteArticle(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func TestArticleService_Create_SlugCollisions(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())
	ctx := context.Background()

	first, err := svc.Create(ctx, ArticleInput{Title: strPtr("Deep Learning Survey")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.Slug != "deep-learning-survey" {
		t.Errorf("expected base slug, got %q", first.Slug)
	}

	second, err := svc.Create(ctx, ArticleInput{Title: strPtr("Deep Learning Survey")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if second.Slug != "deep-learning-survey-1" {
		t.Errorf("expected first collision suffix, got %q", second.Slug)
	}

	third, err := svc.Create(ctx, ArticleInput{Title: strPtr("Deep Learning Survey")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if third.Slug != "deep-learning-survey-2" {
		t.Errorf("expected second collision suffix, got %q", third.Slug)
	}
}

func TestArticleService_Create_EmptyTitleGetsRandomSlug(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())

	article, err := svc.Create(context.Background(), ArticleInput{Content: strPtr("<p>untitled draft</p>")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if article.Slug == "" {
		t.Error("expected a generated slug for an empty title")
	}
}

func TestArticleService_Create_DefaultsPrimaryCategory(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())

	article, err := svc.Create(context.Background(), ArticleInput{
		Title:       strPtr("Untagged"),
		CategoryIDs: []int64{7, 9},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if article.PrimaryCategoryID == nil || *article.PrimaryCategoryID != 7 {
		t.Errorf("expected first category as primary, got %v", article.PrimaryCategoryID)
	}
}

func TestArticleService_Create_SanitizesContent(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())

	article, err := svc.Create(context.Background(), ArticleInput{
		Title:   strPtr("Scripted"),
		Content: strPtr(`<p>fine</p><script>alert("boom")</script>`),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if strings.Contains(article.Content, "<script>") {
		t.Errorf("script tag survived sanitization: %q", article.Content)
	}
	if !strings.Contains(article.Content, "fine") {
		t.Errorf("legitimate content lost: %q", article.Content)
	}
}

func TestArticleService_Create_PublishesWhenScheduleElapsed(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())

	past := time.Now().UTC().Add(-time.Hour)
	article, err := svc.Create(context.Background(), ArticleInput{
		Title:                strPtr("Due Now"),
		ScheduledPublishTime: &past,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if article.Status != data.StatusReady {
		t.Errorf("expected article published at save, got status %q", article.Status)
	}

	future := time.Now().UTC().Add(time.Hour)
	pending, err := svc.Create(context.Background(), ArticleInput{
		Title:                strPtr("Not Yet"),
		ScheduledPublishTime: &future,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if pending.Status != data.StatusDraft {
		t.Errorf("expected future-scheduled article to stay draft, got %q", pending.Status)
	}
}

func TestArticleService_Update_TitleChangeArchivesSlug(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())
	ctx := context.Background()

	article, err := svc.Create(ctx, ArticleInput{Title: strPtr("Original Title")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := svc.Update(ctx, article.ID, ArticleInput{Title: strPtr("Revised Title")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Slug != "revised-title" {
		t.Errorf("expected recomputed slug, got %q", updated.Slug)
	}

	if got := repo.history["original-title"]; got != article.ID {
		t.Errorf("expected vacated slug archived for article, got %q", got)
	}

	found, moved, err := svc.GetByIdentifier(ctx, "original-title")
	if err != nil {
		t.Fatalf("GetByIdentifier failed: %v", err)
	}
	if !moved {
		t.Error("expected moved=true for a historical slug")
	}
	if found.ID != article.ID {
		t.Errorf("historical slug resolved to the wrong article: %s", found.ID)
	}
}

func TestArticleService_Update_OmittedFieldsKeepStoredValues(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())
	ctx := context.Background()

	article, err := svc.Create(ctx, ArticleInput{
		Title:   strPtr("Verkle Trees Explained"),
		Content: strPtr("<p>first draft</p>"),
		Summary: strPtr("A primer."),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if article.Slug != "verkle-trees-explained" {
		t.Fatalf("setup: unexpected slug %q", article.Slug)
	}

	updated, err := svc.Update(ctx, article.ID, ArticleInput{Content: strPtr("<p>second draft</p>")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "Verkle Trees Explained" {
		t.Errorf("omitted title was overwritten: %q", updated.Title)
	}
	if updated.Slug != "verkle-trees-explained" {
		t.Errorf("slug reassigned on a content-only update: %q", updated.Slug)
	}
	if updated.Summary != "A primer." {
		t.Errorf("omitted summary was overwritten: %q", updated.Summary)
	}
	if !strings.Contains(updated.Content, "second draft") {
		t.Errorf("supplied content not applied: %q", updated.Content)
	}
	if len(repo.history) != 0 {
		t.Errorf("content-only update must not archive the slug, history: %v", repo.history)
	}

	// The reverse direction: a title-only update leaves the content alone.
	updated, err = svc.Update(ctx, article.ID, ArticleInput{Title: strPtr("Verkle Trees in Depth")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !strings.Contains(updated.Content, "second draft") {
		t.Errorf("omitted content was overwritten: %q", updated.Content)
	}
	if updated.Slug != "verkle-trees-in-depth" {
		t.Errorf("expected recomputed slug for new title, got %q", updated.Slug)
	}
}

func TestArticleService_Update_SlugReacquisitionDropsHistory(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())
	ctx := context.Background()

	article, _ := svc.Create(ctx, ArticleInput{Title: strPtr("First Name")})
	if _, err := svc.Update(ctx, article.ID, ArticleInput{Title: strPtr("Second Name")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := svc.Update(ctx, article.ID, ArticleInput{Title: strPtr("First Name")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, ok := repo.history["first-name"]; ok {
		t.Error("re-acquired slug must not stay in history")
	}
	if _, ok := repo.history["second-name"]; !ok {
		t.Error("intermediate slug must stay archived")
	}

	found, moved, err := svc.GetByIdentifier(ctx, "first-name")
	if err != nil {
		t.Fatalf("GetByIdentifier failed: %v", err)
	}
	if moved {
		t.Error("live slug must resolve directly, not via history")
	}
	if found.ID != article.ID {
		t.Errorf("resolved wrong article: %s", found.ID)
	}
}

func TestArticleService_Update_ReadyNeverReverts(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	article, _ := svc.Create(ctx, ArticleInput{Title: strPtr("Published"), ScheduledPublishTime: &past})
	if article.Status != data.StatusReady {
		t.Fatalf("setup: expected ready article, got %q", article.Status)
	}

	updated, err := svc.Update(ctx, article.ID, ArticleInput{Title: strPtr("Published"), Status: data.StatusDraft})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != data.StatusReady {
		t.Errorf("ready article reverted to %q", updated.Status)
	}
}

func TestArticleService_MirrorsOnlyReadyArticles(t *testing.T) {
	repo := newFakeArticleRepo()
	mirror := &mockSearchMirror{}
	svc := NewArticleService(repo, mirror, testLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, ArticleInput{Title: strPtr("Draft Only")}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(mirror.indexed) != 0 {
		t.Errorf("draft must not be mirrored, indexed: %v", mirror.indexed)
	}

	past := time.Now().UTC().Add(-time.Minute)
	ready, err := svc.Create(ctx, ArticleInput{Title: strPtr("Goes Live"), ScheduledPublishTime: &past})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(mirror.indexed) != 1 || mirror.indexed[0] != ready.ID {
		t.Errorf("expected ready article mirrored, indexed: %v", mirror.indexed)
	}
}

func TestArticleService_PublishDue(t *testing.T) {
	repo := newFakeArticleRepo()
	mirror := &mockSearchMirror{}
	svc := NewArticleService(repo, mirror, testLogger())
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	pending, _ := svc.Create(ctx, ArticleInput{Title: strPtr("Later"), ScheduledPublishTime: &future})

	// Make the article due and sweep.
	past := time.Now().UTC().Add(-time.Minute)
	repo.articles[pending.ID].ScheduledPublishTime = &past

	published, err := svc.PublishDue(ctx)
	if err != nil {
		t.Fatalf("PublishDue failed: %v", err)
	}
	if published != 1 {
		t.Errorf("expected 1 published article, got %d", published)
	}
	if repo.articles[pending.ID].Status != data.StatusReady {
		t.Errorf("swept article not ready: %q", repo.articles[pending.ID].Status)
	}
	if len(mirror.indexed) == 0 || mirror.indexed[len(mirror.indexed)-1] != pending.ID {
		t.Errorf("swept article not mirrored: %v", mirror.indexed)
	}

	// A second sweep finds nothing.
	published, err = svc.PublishDue(ctx)
	if err != nil {
		t.Fatalf("PublishDue failed: %v", err)
	}
	if published != 0 {
		t.Errorf("second sweep must be a no-op, got %d", published)
	}
}

func TestArticleService_Related_FallsBackToSharedCategories(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())
	ctx := context.Background()

	article, _ := svc.Create(ctx, ArticleInput{Title: strPtr("Lonely")})
	neighbor := &data.Article{ID: "n1", Title: strPtr("Neighbor"), Status: data.StatusReady}
	repo.fallback[article.ID] = []*data.Article{neighbor}

	related, err := svc.Related(ctx, article.ID)
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(related) != 1 || related[0].ID != "n1" {
		t.Errorf("expected fallback articles, got %+v", related)
	}

	// Once a manual ready edge exists, it wins over the fallback.
	past := time.Now().UTC().Add(-time.Minute)
	manual, _ := svc.Create(ctx, ArticleInput{Title: strPtr("Curated"), ScheduledPublishTime: &past})
	repo.related[article.ID] = []string{manual.ID}

	related, err = svc.Related(ctx, article.ID)
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(related) != 1 || related[0].ID != manual.ID {
		t.Errorf("expected manual edge to win, got %+v", related)
	}
}

func TestArticleService_BuildsTableOfContents(t *testing.T) {
	repo := newFakeArticleRepo()
	svc := NewArticleService(repo, nil, testLogger())

	article, err := svc.Create(context.Background(), ArticleInput{
		Title:   strPtr("Structured"),
		Content: strPtr("<h1>One</h1><h2>Two</h2><p>body</p>"),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	toc := string(article.TableOfContents)
	if !strings.Contains(toc, `"title":"One"`) || !strings.Contains(toc, `"id":"two"`) {
		t.Errorf("unexpected table of contents: %s", toc)
	}
	if !strings.Contains(article.Content, `id="one"`) {
		t.Errorf("content missing anchor ids: %s", article.Content)
	}
}
