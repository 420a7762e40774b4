package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	// AllowedOrigins holds exact origins ("https://app.example.com") or
	// subdomain wildcards ("https://*.example.com"). Empty denies all.
	AllowedOrigins []string
	MaxAge         int
}

// DefaultCORSConfig allows no origins and caches preflights for a day.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{MaxAge: 86400}
}

const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-API-Key, X-Request-ID"
	corsExposed = "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After"
)

type originRule struct {
	scheme string
	host   string
	// wildcard matches any subdomain of host, not host itself.
	wildcard bool
}

func parseOriginRules(origins []string) []originRule {
	rules := make([]originRule, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(strings.ToLower(strings.TrimSpace(o)))
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		rule := originRule{scheme: u.Scheme, host: u.Host}
		if strings.HasPrefix(rule.host, "*.") {
			rule.host = rule.host[1:]
			rule.wildcard = true
		}
		rules = append(rules, rule)
	}
	return rules
}

func originAllowed(origin string, rules []originRule) bool {
	u, err := url.Parse(strings.ToLower(origin))
	if err != nil || u.Host == "" {
		return false
	}
	for _, rule := range rules {
		if u.Scheme != rule.scheme {
			continue
		}
		if rule.wildcard {
			if strings.HasSuffix(u.Host, rule.host) && len(u.Host) > len(rule.host) {
				return true
			}
			continue
		}
		if u.Host == rule.host {
			return true
		}
	}
	return false
}

// CORS answers preflights and tags responses for allowed origins.
// Disallowed preflights get 403; other disallowed requests run without CORS
// headers and the browser discards the response.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	rules := parseOriginRules(cfg.AllowedOrigins)
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !originAllowed(origin, rules) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", corsExposed)

			if preflight {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				if maxAge != "" {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
