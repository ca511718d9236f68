// Package search mirrors published content into a hosted Elasticsearch
// index. The database stays the source of truth; the index is a read model
// rebuilt one document at a time as articles change.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-research-cms/internal/config"
	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/microcosm-cc/bluemonday"
)

const (
	// Index payload bounds, chosen to keep records well under the hosted
	// plan's per-record limit.
	maxContentLength = 8000
	maxSummaryLength = 1000
)

// Indexer maintains the article, author and category indexes.
type Indexer struct {
	client        *elasticsearch.TypedClient
	articleIndex  string
	authorIndex   string
	categoryIndex string
	stripper      *bluemonday.Policy
	log           logger.Logger
}

// NewIndexer connects to the configured cluster and ensures the indexes
// exist.
func NewIndexer(ctx context.Context, cfg config.SearchConfig, log logger.Logger) (*Indexer, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	}
	client, err := elasticsearch.NewTypedClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	indexer := &Indexer{
		client:        client,
		articleIndex:  cfg.ArticleIndex,
		authorIndex:   cfg.AuthorIndex,
		categoryIndex: cfg.CategoryIndex,
		stripper:      bluemonday.StrictPolicy(),
		log:           log,
	}
	if err := indexer.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure search indexes: %w", err)
	}
	return indexer, nil
}

// articleDocument is the search-side projection of a ready article.
type articleDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Categories  []string  `json:"categories"`
	Authors     []string  `json:"authors"`
	Thumb       string    `json:"thumb"`
	IsSponsored bool      `json:"is_sponsored"`
	Views       int64     `json:"views"`
	PublishedAt time.Time `json:"published_at"`
	IndexedAt   time.Time `json:"indexed_at"`
}

type authorDocument struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Bio       string    `json:"bio"`
	IndexedAt time.Time `json:"indexed_at"`
}

type categoryDocument struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsPrimary bool      `json:"is_primary"`
	IndexedAt time.Time `json:"indexed_at"`
}

// IndexArticle writes one article document, replacing any previous version.
func (i *Indexer) IndexArticle(ctx context.Context, article *data.Article, categories []*data.Category, authors []*data.Author) error {
	doc := i.mapArticle(article, categories, authors)
	res, err := i.client.Index(i.articleIndex).Id(doc.ID).Document(doc).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to index article %s: %w", doc.ID, err)
	}
	i.log.Debug(fmt.Sprintf("indexed article %s (%s)", doc.ID, res.Result))
	return nil
}

// DeleteArticle removes an article from the index. A missing document is
// not an error; un-publishing an article that never hit the index is fine.
func (i *Indexer) DeleteArticle(ctx context.Context, id string) error {
	if _, err := i.client.Delete(i.articleIndex, id).Do(ctx); err != nil {
		return fmt.Errorf("failed to delete article %s from index: %w", id, err)
	}
	return nil
}

// IndexAuthor writes one author document.
func (i *Indexer) IndexAuthor(ctx context.Context, author *data.Author) error {
	doc := authorDocument{
		ID:        author.ID,
		Name:      author.Name,
		Slug:      author.Slug,
		Bio:       i.stripText(author.Bio, maxSummaryLength),
		IndexedAt: time.Now().UTC(),
	}
	if _, err := i.client.Index(i.authorIndex).Id(fmt.Sprintf("%d", doc.ID)).Document(doc).Do(ctx); err != nil {
		return fmt.Errorf("failed to index author %d: %w", doc.ID, err)
	}
	return nil
}

// IndexCategory writes one category document.
func (i *Indexer) IndexCategory(ctx context.Context, category *data.Category) error {
	doc := categoryDocument{
		ID:        category.ID,
		Name:      category.Name,
		Slug:      category.Slug,
		IsPrimary: category.IsPrimary,
		IndexedAt: time.Now().UTC(),
	}
	if _, err := i.client.Index(i.categoryIndex).Id(fmt.Sprintf("%d", doc.ID)).Document(doc).Do(ctx); err != nil {
		return fmt.Errorf("failed to index category %d: %w", doc.ID, err)
	}
	return nil
}

// EnsureIndexes creates any missing index with its mapping.
func (i *Indexer) EnsureIndexes(ctx context.Context) error {
	indexes := map[string]types.TypeMapping{
		i.articleIndex:  i.articleMapping(),
		i.authorIndex:   i.nameMapping(),
		i.categoryIndex: i.nameMapping(),
	}
	for name, mapping := range indexes {
		exists, err := i.client.Indices.Exists(name).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", name, err)
		}
		if exists {
			continue
		}
		res, err := i.client.Indices.Create(name).Mappings(&mapping).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
		if !res.Acknowledged {
			return fmt.Errorf("creation of index %s was not acknowledged", name)
		}
		i.log.Info(fmt.Sprintf("created search index %s", name))
	}
	return nil
}

func (i *Indexer) mapArticle(article *data.Article, categories []*data.Category, authors []*data.Author) articleDocument {
	categoryNames := make([]string, 0, len(categories))
	for _, c := range categories {
		categoryNames = append(categoryNames, c.Name)
	}
	authorNames := make([]string, 0, len(authors))
	for _, a := range authors {
		authorNames = append(authorNames, a.Name)
	}

	publishedAt := article.UpdatedAt
	if article.ScheduledPublishTime != nil {
		publishedAt = *article.ScheduledPublishTime
	}

	return articleDocument{
		ID:          article.ID,
		Title:       article.Title,
		Slug:        article.Slug,
		Summary:     i.stripText(article.Summary, maxSummaryLength),
		Content:     i.stripText(article.Content, maxContentLength),
		Categories:  categoryNames,
		Authors:     authorNames,
		Thumb:       article.ThumbID,
		IsSponsored: article.IsSponsored,
		Views:       article.Views,
		PublishedAt: publishedAt,
		IndexedAt:   time.Now().UTC(),
	}
}

// stripText removes markup and truncates on a rune boundary.
func (i *Indexer) stripText(html string, limit int) string {
	text := strings.TrimSpace(i.stripper.Sanitize(html))
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

func (i *Indexer) articleMapping() types.TypeMapping {
	return types.TypeMapping{
		Properties: map[string]types.Property{
			"id":           types.NewKeywordProperty(),
			"title":        textWithKeyword(),
			"slug":         types.NewKeywordProperty(),
			"summary":      types.NewTextProperty(),
			"content":      types.NewTextProperty(),
			"categories":   textWithKeyword(),
			"authors":      textWithKeyword(),
			"thumb":        types.NewKeywordProperty(),
			"is_sponsored": types.NewBooleanProperty(),
			"views":        types.NewLongNumberProperty(),
			"published_at": types.NewDateProperty(),
			"indexed_at":   types.NewDateProperty(),
		},
	}
}

func (i *Indexer) nameMapping() types.TypeMapping {
	return types.TypeMapping{
		Properties: map[string]types.Property{
			"id":         types.NewKeywordProperty(),
			"name":       textWithKeyword(),
			"slug":       types.NewKeywordProperty(),
			"indexed_at": types.NewDateProperty(),
		},
	}
}

func textWithKeyword() types.Property {
	prop := types.NewTextProperty()
	prop.Fields = map[string]types.Property{
		"keyword": types.NewKeywordProperty(),
	}
	return prop
}
