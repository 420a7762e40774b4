package middleware

import (
	"net/http"
)

// DefaultMaxBodyBytes bounds JSON request bodies. Video bytes go straight
// to object storage and never pass through the API.
const DefaultMaxBodyBytes int64 = 1 << 20

// SecurityConfig controls the response hardening headers.
type SecurityConfig struct {
	// HSTS adds Strict-Transport-Security. Off in development, where the
	// API is served over plain HTTP.
	HSTS bool
	// MaxRequestBodySize is the body limit MaxBodySize should be given.
	MaxRequestBodySize int64
}

// DefaultSecurityConfig returns the production settings.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTS:               true,
		MaxRequestBodySize: DefaultMaxBodyBytes,
	}
}

// apiHeaders are set on every response. The API only returns JSON and
// redirects, so nothing may be framed, sniffed or cached.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// Security sets the hardening headers before the handler runs.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects declared oversize bodies with 413 and caps the rest,
// so a body without Content-Length still fails to decode past maxBytes.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
