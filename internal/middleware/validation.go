package middleware

import (
	"errors"
	"mime"
	"net/http"
	"strings"
)

// Request limits.
const (
	// MaxWebhookURLLength is the maximum length for webhook URLs.
	MaxWebhookURLLength = 1024
)

// Validation errors.
var (
	ErrWebhookURLTooLong = errors.New("webhook URL exceeds maximum length")
)

// RequireJSON rejects bodies on POST, PUT and PATCH that are not
// application/json. Requests without a body pass.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		ct := r.Header.Get("Content-Type")
		if ct == "" {
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || !strings.EqualFold(mediaType, "application/json") {
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateWebhookURL checks the length of a webhook target URL.
// Scheme and address checks happen in webhook.ValidateTargetURL.
func ValidateWebhookURL(url string) error {
	if len(url) > MaxWebhookURLLength {
		return ErrWebhookURLTooLong
	}
	return nil
}
