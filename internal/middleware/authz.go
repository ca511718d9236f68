package middleware

import (
	"net/http"

	"github.com/casbin/casbin/v2"
)

// Authorizer resolves the caller's role from the X-API-Key header and
// enforces the Casbin policy for the requested route. Requests without a
// recognized key run as "anonymous".
func Authorizer(e casbin.IEnforcer, apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := "anonymous"
			if key := r.Header.Get("X-API-Key"); key != "" {
				if role, ok := apiKeys[key]; ok {
					subject = role
				}
			}

			r = r.WithContext(SetUserInfo(r.Context(), &UserInfo{Subject: subject}))

			allowed, err := e.Enforce(subject, r.URL.Path, r.Method)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "Authorization error")
				return
			}
			if !allowed {
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
