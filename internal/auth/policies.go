package auth

import (
	"fmt"

	"go-research-cms/internal/logger"

	"github.com/casbin/casbin/v2"
)

// SeedDefaultPolicies ensures a baseline set of authorization rules exists.
// Each policy is checked before being added, so running this on every start
// is safe.
func SeedDefaultPolicies(e casbin.IEnforcer, log logger.Logger) {
	log.Info("Seeding default authorization policies...")

	// Anonymous callers get the public read surface; editors additionally
	// get the content-management writes. The editor role inherits from
	// anonymous below.
	policies := [][]string{
		{"anonymous", "/api/articles/*", "GET"},
		{"anonymous", "/api/articles", "GET"},
		{"anonymous", "/api/categories", "GET"},
		{"anonymous", "/api/authors", "GET"},
		{"anonymous", "/api/authors/*", "GET"},
		{"anonymous", "/newsletter/subscribe", "POST"},
		{"anonymous", "/newsletter/unsubscribe/*", "GET"},
		{"anonymous", "/research/rss", "GET"},
		{"anonymous", "/sitemap.xml", "GET"},
		{"anonymous", "/robots.txt", "GET"},

		{"editor", "/api/articles", "POST"},
		{"editor", "/api/articles/*", "PUT"},
		{"editor", "/api/categories", "POST"},
		{"editor", "/api/authors", "POST"},
		{"editor", "/newsletter/issues", "POST"},
		{"editor", "/tinymce/upload", "POST"},
	}
	for _, p := range policies {
		if has, _ := e.HasPolicy(p); !has {
			if _, err := e.AddPolicy(p); err != nil {
				log.Error(err, fmt.Sprintf("Failed to add policy %v", p))
			}
		}
	}

	if has, _ := e.HasRoleForUser("editor", "anonymous"); !has {
		if _, err := e.AddRoleForUser("editor", "anonymous"); err != nil {
			log.Error(err, "Failed to add role 'editor' -> 'anonymous'")
		}
	}
	log.Info("Policy seeding complete.")
}
