package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go-research-cms/internal/data"
)

// envelope is the standard JSON response wrapper.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// pagedEnvelope adds paging metadata to list responses.
type pagedEnvelope struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// articleResponse is the full serialization used for single-article reads
// and write responses.
type articleResponse struct {
	ID                   string                `json:"id"`
	Title                string                `json:"title"`
	Slug                 string                `json:"slug"`
	Content              string                `json:"content"`
	Summary              string                `json:"summary"`
	GPTSummary           string                `json:"gpt_summary,omitempty"`
	Acknowledgement      string                `json:"acknowledgement,omitempty"`
	Status               string                `json:"status"`
	ScheduledPublishTime *time.Time            `json:"scheduled_publish_time"`
	Views                int64                 `json:"views"`
	MinRead              int                   `json:"min_read"`
	ThumbID              string                `json:"thumb_id,omitempty"`
	IsSponsored          bool                  `json:"is_sponsored"`
	SponsorColor         string                `json:"sponsor_color,omitempty"`
	SponsorTextColor     string                `json:"sponsor_text_color,omitempty"`
	PrimaryCategoryID    *int64                `json:"primary_category_id"`
	TableOfContents      json.RawMessage       `json:"table_of_contents"`
	Categories           []categoryResponse    `json:"categories"`
	Authors              []authorResponse      `json:"authors"`
	RelatedArticles      []articleListResponse `json:"related_articles"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// articleListResponse is the compact serialization used in lists and
// related-article blocks.
type articleListResponse struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Slug                 string     `json:"slug"`
	Summary              string     `json:"summary"`
	ThumbID              string     `json:"thumb_id,omitempty"`
	MinRead              int        `json:"min_read"`
	Views                int64      `json:"views"`
	IsSponsored          bool       `json:"is_sponsored"`
	ScheduledPublishTime *time.Time `json:"scheduled_publish_time"`
}

type categoryResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	IsPrimary    bool   `json:"is_primary"`
	ParentID     *int64 `json:"parent_id"`
	ArticleCount *int64 `json:"article_count,omitempty"`
}

type authorResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	TwitterUsername string `json:"twitter_username,omitempty"`
	Bio             string `json:"bio,omitempty"`
}

func toArticleResponse(article *data.Article, categories []*data.Category, authors []*data.Author, related []*data.Article) articleResponse {
	toc := article.TableOfContents
	if len(toc) == 0 {
		toc = json.RawMessage("[]")
	}
	resp := articleResponse{
		ID:                   article.ID,
		Title:                article.Title,
		Slug:                 article.Slug,
		Content:              article.Content,
		Summary:              article.Summary,
		GPTSummary:           article.GPTSummary,
		Acknowledgement:      article.Acknowledgement,
		Status:               article.Status,
		ScheduledPublishTime: article.ScheduledPublishTime,
		Views:                article.Views,
		MinRead:              article.MinRead(),
		ThumbID:              article.ThumbID,
		IsSponsored:          article.IsSponsored,
		SponsorColor:         article.SponsorColor,
		SponsorTextColor:     article.SponsorTextColor,
		PrimaryCategoryID:    article.PrimaryCategoryID,
		TableOfContents:      toc,
		Categories:           make([]categoryResponse, 0, len(categories)),
		Authors:              make([]authorResponse, 0, len(authors)),
		RelatedArticles:      toArticleListResponses(related),
		CreatedAt:            article.CreatedAt,
		UpdatedAt:            article.UpdatedAt,
	}
	for _, c := range categories {
		resp.Categories = append(resp.Categories, toCategoryResponse(c, false))
	}
	for _, a := range authors {
		resp.Authors = append(resp.Authors, toAuthorResponse(a))
	}
	return resp
}

func toArticleListResponses(articles []*data.Article) []articleListResponse {
	out := make([]articleListResponse, 0, len(articles))
	for _, article := range articles {
		out = append(out, articleListResponse{
			ID:                   article.ID,
			Title:                article.Title,
			Slug:                 article.Slug,
			Summary:              article.Summary,
			ThumbID:              article.ThumbID,
			MinRead:              article.MinRead(),
			Views:                article.Views,
			IsSponsored:          article.IsSponsored,
			ScheduledPublishTime: article.ScheduledPublishTime,
		})
	}
	return out
}

func toCategoryResponse(category *data.Category, withCount bool) categoryResponse {
	resp := categoryResponse{
		ID:        category.ID,
		Name:      category.Name,
		Slug:      category.Slug,
		IsPrimary: category.IsPrimary,
		ParentID:  category.ParentID,
	}
	if withCount {
		count := category.ArticleCount
		resp.ArticleCount = &count
	}
	return resp
}

func toAuthorResponse(author *data.Author) authorResponse {
	return authorResponse{
		ID:              author.ID,
		Name:            author.Name,
		Slug:            author.Slug,
		TwitterUsername: author.TwitterUsername,
		Bio:             author.Bio,
	}
}
