package handler

import (
	"net/http"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
	appmw "go-research-cms/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterDeps collects everything the router mounts.
type RouterDeps struct {
	Articles    *ArticleHandler
	Categories  *CategoryHandler
	Authors     *AuthorHandler
	Newsletter  *NewsletterHandler
	Feeds       *FeedHandler
	Uploads     *UploadHandler
	Redirects   []*data.LegacyRedirect
	Authorizer  func(http.Handler) http.Handler
	Log         logger.Logger
}

// NewRouter creates and configures a new chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	wrap := appmw.Error(deps.Log)

	// Feeds and redirects sit outside authorization; they are public by
	// definition and crawlers do not send API keys.
	r.Get("/research/rss", deps.Feeds.rssHandler)
	r.Get("/sitemap.xml", deps.Feeds.sitemapHandler)
	r.Get("/robots.txt", deps.Feeds.robotsHandler)
	RegisterLegacyRedirects(r, deps.Redirects, deps.Log)

	r.Group(func(r chi.Router) {
		r.Use(deps.Authorizer)

		r.Route("/api/articles", func(r chi.Router) {
			r.Method(http.MethodGet, "/", wrap(deps.Articles.listHandler))
			r.Method(http.MethodPost, "/", wrap(deps.Articles.createHandler))
			r.Method(http.MethodGet, "/category/{slug}", wrap(deps.Articles.byCategoryHandler))
			r.Method(http.MethodGet, "/primary-category/{slug}", wrap(deps.Articles.byPrimaryCategoryHandler))
			// chi requires one wildcard name per segment, so the update
			// route shares {identifier} even though it only accepts ids.
			r.Method(http.MethodGet, "/{identifier}", wrap(deps.Articles.getHandler))
			r.Method(http.MethodPut, "/{identifier}", wrap(deps.Articles.updateHandler))
		})

		r.Route("/api/categories", func(r chi.Router) {
			r.Method(http.MethodGet, "/", wrap(deps.Categories.listHandler))
			r.Method(http.MethodPost, "/", wrap(deps.Categories.createHandler))
		})

		r.Route("/api/authors", func(r chi.Router) {
			r.Method(http.MethodGet, "/", wrap(deps.Authors.listHandler))
			r.Method(http.MethodPost, "/", wrap(deps.Authors.createHandler))
			r.Method(http.MethodGet, "/{id}/articles", wrap(deps.Authors.articlesHandler))
		})

		r.Route("/newsletter", func(r chi.Router) {
			r.Method(http.MethodPost, "/subscribe", wrap(deps.Newsletter.subscribeHandler))
			r.Method(http.MethodGet, "/unsubscribe/{email}", wrap(deps.Newsletter.unsubscribeHandler))
			r.Method(http.MethodPost, "/issues", wrap(deps.Newsletter.createIssueHandler))
		})

		r.Method(http.MethodPost, "/tinymce/upload", wrap(deps.Uploads.uploadHandler))
	})

	return r
}
