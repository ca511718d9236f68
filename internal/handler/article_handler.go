package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/middleware"
	"go-research-cms/internal/service"

	"github.com/go-chi/chi/v5"
)

// ArticleServicer captures the article operations the handlers need.
type ArticleServicer interface {
	Create(ctx context.Context, input service.ArticleInput) (*data.Article, error)
	Update(ctx context.Context, id string, input service.ArticleInput) (*data.Article, error)
	GetByIdentifier(ctx context.Context, identifier string) (*data.Article, bool, error)
	RecordView(ctx context.Context, id string) (int64, error)
	ListReady(ctx context.Context, page, pageSize int) ([]*data.Article, int64, error)
	ListByCategory(ctx context.Context, categorySlug string) ([]*data.Article, error)
	ListByPrimaryCategory(ctx context.Context, categorySlug string, page, pageSize int) ([]*data.Article, error)
	Related(ctx context.Context, articleID string) ([]*data.Article, error)
	CategoriesFor(ctx context.Context, articleID string) ([]*data.Category, error)
	AuthorsFor(ctx context.Context, articleID string) ([]*data.Author, error)
}

// ArticleHandler holds the dependencies for the article handlers.
type ArticleHandler struct {
	articles ArticleServicer
	log      logger.Logger
}

// NewArticleHandler creates a new ArticleHandler.
func NewArticleHandler(articles ArticleServicer, log logger.Logger) *ArticleHandler {
	return &ArticleHandler{articles: articles, log: log}
}

// articleRequest is the JSON body accepted by create and update. Pointer
// fields distinguish an omitted key from an explicit zero value, so updates
// only touch the fields the caller sent.
type articleRequest struct {
	Title                *string    `json:"title"`
	Content              *string    `json:"content"`
	Summary              *string    `json:"summary"`
	GPTSummary           *string    `json:"gpt_summary"`
	Acknowledgement      *string    `json:"acknowledgement"`
	Status               string     `json:"status"`
	ScheduledPublishTime *time.Time `json:"scheduled_publish_time"`
	ThumbID              *string    `json:"thumb_id"`
	IsSponsored          *bool      `json:"is_sponsored"`
	SponsorColor         *string    `json:"sponsor_color"`
	SponsorTextColor     *string    `json:"sponsor_text_color"`
	PrimaryCategoryID    *int64     `json:"primary_category_id"`
	CategoryIDs          []int64    `json:"category_ids"`
	AuthorIDs            []int64    `json:"author_ids"`
	RelatedArticleIDs    []string   `json:"related_article_ids"`
}

func (req *articleRequest) toInput() service.ArticleInput {
	return service.ArticleInput{
		Title:                req.Title,
		Content:              req.Content,
		Summary:              req.Summary,
		GPTSummary:           req.GPTSummary,
		Acknowledgement:      req.Acknowledgement,
		Status:               req.Status,
		ScheduledPublishTime: req.ScheduledPublishTime,
		ThumbID:              req.ThumbID,
		IsSponsored:          req.IsSponsored,
		SponsorColor:         req.SponsorColor,
		SponsorTextColor:     req.SponsorTextColor,
		PrimaryCategoryID:    req.PrimaryCategoryID,
		CategoryIDs:          req.CategoryIDs,
		AuthorIDs:            req.AuthorIDs,
		RelatedArticleIDs:    req.RelatedArticleIDs,
	}
}

// createHandler creates a new article.
func (h *ArticleHandler) createHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	var req articleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}
	if (req.Title == nil || *req.Title == "") && (req.Content == nil || *req.Content == "") {
		return &middleware.AppError{Error: errors.New("empty article"), Message: "A title or content is required", Code: http.StatusBadRequest}
	}

	article, err := h.articles.Create(r.Context(), req.toInput())
	if err != nil {
		return articleWriteError(err)
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: h.serialize(r, article)})
	return nil
}

// updateHandler applies a full update to an existing article.
func (h *ArticleHandler) updateHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	id := chi.URLParam(r, "identifier")
	var req articleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}

	article, err := h.articles.Update(r.Context(), id, req.toInput())
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return &middleware.AppError{Error: err, Message: "Article not found", Code: http.StatusNotFound}
		}
		return articleWriteError(err)
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: h.serialize(r, article)})
	return nil
}

// listHandler returns a page of ready articles.
func (h *ArticleHandler) listHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	page, pageSize := pagingParams(r)
	articles, total, err := h.articles.ListReady(r.Context(), page, pageSize)
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to list articles", Code: http.StatusInternalServerError}
	}
	writeJSON(w, http.StatusOK, pagedEnvelope{
		Success:  true,
		Data:     toArticleListResponses(articles),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
	return nil
}

// getHandler resolves an article by uuid or slug. A slug found only in
// history answers 301 with the canonical location plus the article body, so
// old links keep working while crawlers learn the new URL.
func (h *ArticleHandler) getHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	identifier := chi.URLParam(r, "identifier")

	article, moved, err := h.articles.GetByIdentifier(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return &middleware.AppError{Error: err, Message: "Article not found", Code: http.StatusNotFound}
		}
		return &middleware.AppError{Error: err, Message: "Failed to load article", Code: http.StatusInternalServerError}
	}

	if views, err := h.articles.RecordView(r.Context(), article.ID); err != nil {
		h.log.Error(err, fmt.Sprintf("failed to record view for article %s", article.ID))
	} else {
		article.Views = views
	}

	code := http.StatusOK
	if moved {
		h.log.Info(fmt.Sprintf("slug %q moved, redirecting to %q", identifier, article.Slug))
		w.Header().Set("Location", "/api/articles/"+article.Slug)
		code = http.StatusMovedPermanently
	}
	writeJSON(w, code, envelope{Success: true, Data: h.serialize(r, article)})
	return nil
}

// byCategoryHandler returns the ready articles attached to a category.
func (h *ArticleHandler) byCategoryHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	categorySlug := chi.URLParam(r, "slug")
	articles, err := h.articles.ListByCategory(r.Context(), categorySlug)
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to list articles by category", Code: http.StatusInternalServerError}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toArticleListResponses(articles)})
	return nil
}

// byPrimaryCategoryHandler returns a page of ready articles whose category
// tree hangs under the given primary category.
func (h *ArticleHandler) byPrimaryCategoryHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	categorySlug := chi.URLParam(r, "slug")
	page, pageSize := pagingParams(r)
	articles, err := h.articles.ListByPrimaryCategory(r.Context(), categorySlug, page, pageSize)
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to list articles by primary category", Code: http.StatusInternalServerError}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toArticleListResponses(articles)})
	return nil
}

// serialize assembles the full article response. Association loads are best
// effort; a failed lookup degrades to an empty list rather than failing the
// whole response.
func (h *ArticleHandler) serialize(r *http.Request, article *data.Article) articleResponse {
	ctx := r.Context()
	categories, err := h.articles.CategoriesFor(ctx, article.ID)
	if err != nil {
		h.log.Error(err, "failed to load article categories")
	}
	authors, err := h.articles.AuthorsFor(ctx, article.ID)
	if err != nil {
		h.log.Error(err, "failed to load article authors")
	}
	related, err := h.articles.Related(ctx, article.ID)
	if err != nil {
		h.log.Error(err, "failed to load related articles")
	}
	return toArticleResponse(article, categories, authors, related)
}

// articleWriteError maps the repository's edge-validation errors onto 400s.
func articleWriteError(err error) *middleware.AppError {
	switch {
	case errors.Is(err, data.ErrSelfReference):
		return &middleware.AppError{Error: err, Message: "An article cannot relate to itself", Code: http.StatusBadRequest}
	case errors.Is(err, data.ErrReverseEdge):
		return &middleware.AppError{Error: err, Message: "The reverse relation already exists", Code: http.StatusBadRequest}
	case errors.Is(err, data.ErrTooManyRelated):
		return &middleware.AppError{Error: err, Message: "An article can have at most 3 related articles", Code: http.StatusBadRequest}
	case errors.Is(err, data.ErrDuplicateEdge):
		return &middleware.AppError{Error: err, Message: "The relation already exists", Code: http.StatusBadRequest}
	case errors.Is(err, data.ErrTargetNotReady):
		return &middleware.AppError{Error: err, Message: "Related articles must be published", Code: http.StatusBadRequest}
	case errors.Is(err, data.ErrTargetNotFound):
		return &middleware.AppError{Error: err, Message: "Related article does not exist", Code: http.StatusBadRequest}
	default:
		return &middleware.AppError{Error: err, Message: "Failed to save article", Code: http.StatusInternalServerError}
	}
}

func pagingParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
