package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireJSON(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireJSON(next)

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
	}{
		{"json", http.MethodPost, "application/json", `{}`, http.StatusNoContent},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", `{}`, http.StatusNoContent},
		{"form", http.MethodPost, "application/x-www-form-urlencoded", "a=b", http.StatusUnsupportedMediaType},
		{"text on patch", http.MethodPatch, "text/plain", "hi", http.StatusUnsupportedMediaType},
		{"missing type", http.MethodPost, "", `{}`, http.StatusNoContent},
		{"empty body", http.MethodPost, "text/plain", "", http.StatusNoContent},
		{"get ignored", http.MethodGet, "text/plain", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/edit", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	if err := ValidateWebhookURL("https://hooks.example.com/avp"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	long := "https://example.com/" + strings.Repeat("a", MaxWebhookURLLength)
	if err := ValidateWebhookURL(long); !errors.Is(err, ErrWebhookURLTooLong) {
		t.Errorf("err = %v, want ErrWebhookURLTooLong", err)
	}
}
