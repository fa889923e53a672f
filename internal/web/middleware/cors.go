package middleware

import (
	"net/http"
	"strings"
)

// originPolicy is the CORS origin whitelist (WEB_ALLOWED_ORIGINS).
// Localhost on any port is always allowed for development.
type originPolicy map[string]struct{}

func newOriginPolicy(list []string) originPolicy {
	p := make(originPolicy, len(list))
	for _, o := range list {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			p[o] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	switch {
	case origin == "":
		return false
	case origin == "http://localhost", origin == "https://localhost",
		strings.HasPrefix(origin, "http://localhost:"), strings.HasPrefix(origin, "https://localhost:"):
		return true
	}
	_, ok := p[origin]
	return ok
}

// CORS answers preflight requests and reflects whitelisted origins. The API
// authenticates with bearer tokens, so credentials are not allowed.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); policy.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", "Retry-After")
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets headers for a JSON-only API.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
