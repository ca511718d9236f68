package handler

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go-research-cms/internal/cache"
	"go-research-cms/internal/config"
	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
)

const feedDateFormat = time.RFC1123Z

// FeedHandler serves the RSS feed, sitemap and robots.txt. Rendered feeds
// are cached; crawlers hit these endpoints far more often than content
// changes.
type FeedHandler struct {
	articles ArticleServicer
	cache    *cache.Cache
	site     config.SiteConfig
	log      logger.Logger
}

// NewFeedHandler creates a new FeedHandler. cache may be nil to render on
// every request.
func NewFeedHandler(articles ArticleServicer, feedCache *cache.Cache, site config.SiteConfig, log logger.Logger) *FeedHandler {
	return &FeedHandler{articles: articles, cache: feedCache, site: site, log: log}
}

type rssItem struct {
	XMLName     xml.Name `xml:"item"`
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	GUID        string   `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

// rssHandler serves the latest ready articles as RSS 2.0.
func (h *FeedHandler) rssHandler(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "feed:rss", "application/rss+xml; charset=utf-8", h.renderRSS)
}

func (h *FeedHandler) renderRSS(ctx context.Context) ([]byte, error) {
	limit := h.site.RSSLimit
	if limit <= 0 {
		limit = 10
	}
	articles, _, err := h.articles.ListReady(ctx, 1, limit)
	if err != nil {
		return nil, err
	}

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       "Research",
			Link:        h.site.BaseURL,
			Description: "Latest research publications",
			Items:       make([]rssItem, 0, len(articles)),
		},
	}
	for _, article := range articles {
		feed.Channel.Items = append(feed.Channel.Items, rssItem{
			Title:       article.Title,
			Link:        h.articleURL(article),
			Description: article.Summary,
			GUID:        h.articleURL(article),
			PubDate:     publishDate(article).Format(feedDateFormat),
		})
	}

	return encodeXML(feed)
}

const sitemapDateFormat = "2006-01-02"

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// sitemapHandler generates and serves a dynamic sitemap.xml.
func (h *FeedHandler) sitemapHandler(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "feed:sitemap", "application/xml", h.renderSitemap)
}

func (h *FeedHandler) renderSitemap(ctx context.Context) ([]byte, error) {
	// The sitemap walks every ready article, one page at a time.
	sitemap := urlSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for page := 1; ; page++ {
		articles, _, err := h.articles.ListReady(ctx, page, 100)
		if err != nil {
			return nil, err
		}
		if len(articles) == 0 {
			break
		}
		for _, article := range articles {
			sitemap.URLs = append(sitemap.URLs, sitemapURL{
				Loc:     h.articleURL(article),
				LastMod: article.UpdatedAt.Format(sitemapDateFormat),
			})
		}
		if len(articles) < 100 {
			break
		}
	}
	return encodeXML(sitemap)
}

// robotsHandler serves a static robots.txt file.
func (h *FeedHandler) robotsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "User-agent: *")
	fmt.Fprintln(w, "Allow: /")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Sitemap: %s/sitemap.xml\n", strings.TrimRight(h.site.BaseURL, "/"))
}

// serveCached answers from the cache when possible, rendering and storing
// on a miss. Cache failures degrade to rendering.
func (h *FeedHandler) serveCached(w http.ResponseWriter, r *http.Request, key, contentType string, render func(context.Context) ([]byte, error)) {
	if h.cache != nil {
		if cached, cachedType, err := h.cache.Get(key); err != nil {
			h.log.Error(err, "feed cache read failed")
		} else if cached != nil {
			w.Header().Set("Content-Type", cachedType)
			w.Write(cached)
			return
		}
	}

	payload, err := render(r.Context())
	if err != nil {
		h.log.Error(err, "failed to render feed")
		http.Error(w, "Failed to render feed", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(key, payload, contentType); err != nil {
			h.log.Error(err, "feed cache write failed")
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(payload)
}

func (h *FeedHandler) articleURL(article *data.Article) string {
	return fmt.Sprintf("%s/research/%s/", strings.TrimRight(h.site.BaseURL, "/"), article.Slug)
}

func publishDate(article *data.Article) time.Time {
	if article.ScheduledPublishTime != nil {
		return *article.ScheduledPublishTime
	}
	return article.UpdatedAt
}

func encodeXML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
