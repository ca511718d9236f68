package handler

import (
	"fmt"
	"net/http"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"

	"github.com/go-chi/chi/v5"
)

// RegisterLegacyRedirects mounts a permanent redirect for every retired URL.
// The table is small and changes only with content migrations, so the routes
// are fixed at startup. Each hit is logged to track which old links are
// still circulating.
func RegisterLegacyRedirects(r chi.Router, redirects []*data.LegacyRedirect, log logger.Logger) {
	for _, redirect := range redirects {
		target := redirect.NewURL
		oldPath := redirect.OldPath
		r.Get(oldPath, func(w http.ResponseWriter, req *http.Request) {
			log.Info(fmt.Sprintf("legacy redirect hit: %s -> %s", oldPath, target))
			http.Redirect(w, req, target, http.StatusMovedPermanently)
		})
	}
	if len(redirects) > 0 {
		log.Info(fmt.Sprintf("registered %d legacy redirects", len(redirects)))
	}
}
