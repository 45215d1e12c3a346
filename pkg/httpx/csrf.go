package httpx

import (
	"net/http"
	"net/url"
	"strings"
)

// CSRFConfig holds configuration for RequireSameOrigin.
type CSRFConfig struct {
	// AllowedOrigins are accepted in addition to the request's own host,
	// e.g. the public URL when the service sits behind a proxy.
	AllowedOrigins []string
}

// RequireSameOrigin rejects state-changing requests whose Origin header, or
// Referer when Origin is absent, is not the request's own host or one of the
// allowed origins. Requests carrying neither header are rejected too.
func RequireSameOrigin(cfg CSRFConfig) Middleware {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if n := normalizeOrigin(o); n != "" {
			allowed[n] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			source := r.Header.Get("Origin")
			if source == "" {
				source = r.Header.Get("Referer")
			}
			if source == "" {
				http.Error(w, "CSRF validation failed: missing origin", http.StatusForbidden)
				return
			}
			if !sameOrigin(r, source, allowed) {
				http.Error(w, "CSRF validation failed: invalid origin", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sameOrigin(r *http.Request, source string, allowed map[string]bool) bool {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return allowed[normalizeOrigin(source)]
}

// normalizeOrigin reduces rawURL to a lowercase scheme://host.
func normalizeOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
