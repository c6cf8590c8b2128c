package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID"
	corsAllowMethods  = "GET, POST, PATCH, OPTIONS"
	corsExposeHeaders = "X-Request-ID"
	corsMaxAge        = "600"
)

type originPolicy struct {
	any     bool
	origins map[string]bool
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{origins: map[string]bool{}}
	for _, o := range allowed {
		switch o = strings.TrimRight(strings.TrimSpace(o), "/"); o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[strings.ToLower(o)] = true
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	return p.any || p.origins[strings.ToLower(origin)]
}

// CORS lets the listed browser origins call the API. "*" echoes any origin.
// Preflights from other origins are rejected with 403.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if !policy.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			if preflight {
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
