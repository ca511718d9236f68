package data

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Article publication statuses. The only legal transition is draft -> ready.
const (
	StatusDraft = "draft"
	StatusReady = "ready"
)

// Article represents a single research article in the database.
type Article struct {
	ID                   string          `db:"id"`
	Title                string          `db:"title"`
	Content              string          `db:"content"`
	Summary              string          `db:"summary"`
	GPTSummary           string          `db:"gpt_summary"`
	Acknowledgement      string          `db:"acknowledgement"`
	Slug                 string          `db:"slug"`
	Status               string          `db:"status"`
	ScheduledPublishTime *time.Time      `db:"scheduled_publish_time"`
	Views                int64           `db:"views"`
	PrimaryCategoryID    *int64          `db:"primary_category_id"`
	ThumbID              string          `db:"thumb_id"`
	IsSponsored          bool            `db:"is_sponsored"`
	SponsorColor         string          `db:"sponsor_color"`
	SponsorTextColor     string          `db:"sponsor_text_color"`
	TableOfContents      json.RawMessage `db:"table_of_contents"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

// MinRead estimates reading time in minutes at 300 words per minute,
// never reporting less than one minute.
func (a *Article) MinRead() int {
	words := len(strings.Fields(a.Content))
	return int(math.Max(1, math.Round(float64(words)/300)))
}

// ArticleSlugHistory records a slug an article used to be published under.
// Rows are append-only; lookups by a retired slug resolve through this table.
type ArticleSlugHistory struct {
	ID        int64     `db:"id"`
	ArticleID string    `db:"article_id"`
	OldSlug   string    `db:"old_slug"`
	CreatedAt time.Time `db:"created_at"`
}

// RelatedArticle is a directed edge in the manually curated cross-link graph.
type RelatedArticle struct {
	ID            int64  `db:"id"`
	FromArticleID string `db:"from_article_id"`
	ToArticleID   string `db:"to_article_id"`
}

// Category represents an article category.
type Category struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	IsPrimary bool      `db:"is_primary"`
	ParentID  *int64    `db:"parent_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// ArticleCount is populated by list queries that aggregate over
	// ready articles; it is not a column on the categories table.
	ArticleCount int64 `db:"article_count"`
}

// Author represents an article author.
type Author struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Slug            string    `db:"slug"`
	TwitterUsername string    `db:"twitter_username"`
	Bio             string    `db:"bio"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Subscriber represents a newsletter subscriber mirrored into the hosted
// email-marketing platform. ExternalID, Synced and SyncError track the state
// of that mirroring.
type Subscriber struct {
	ID         int64     `db:"id"`
	Email      string    `db:"email"`
	IsActive   bool      `db:"is_active"`
	ExternalID string    `db:"external_id"`
	Synced     bool      `db:"synced"`
	SyncError  string    `db:"sync_error"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Newsletter represents a newsletter issue. Content is authored in markdown
// and rendered to HTML at send time.
type Newsletter struct {
	ID                int64      `db:"id"`
	Subject           string     `db:"subject"`
	Content           string     `db:"content"`
	IsSent            bool       `db:"is_sent"`
	ScheduledSendTime *time.Time `db:"scheduled_send_time"`
	LastSent          *time.Time `db:"last_sent"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// LegacyRedirect maps a retired URL path to its permanent replacement.
type LegacyRedirect struct {
	ID      int64  `db:"id"`
	OldPath string `db:"old_path"`
	NewURL  string `db:"new_url"`
}
