package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
)

func TestRequireScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		scopes     []string
		noAuth     bool
		require    func() func(http.Handler) http.Handler
		wantStatus int
	}{
		{"read key reads jobs", []string{model.ScopeRead}, false, RequireRead, http.StatusOK},
		{"read key cannot submit", []string{model.ScopeRead}, false, RequireWrite, http.StatusForbidden},
		{"default user key submits", model.DefaultUserScopes, false, RequireWrite, http.StatusOK},
		{"default user key manages webhooks", model.DefaultUserScopes, false, RequireWebhook, http.StatusOK},
		{"default user key is not admin", model.DefaultUserScopes, false, RequireAdmin, http.StatusForbidden},
		{"admin reads", []string{model.ScopeAdmin}, false, RequireRead, http.StatusOK},
		{"admin writes", []string{model.ScopeAdmin}, false, RequireWrite, http.StatusOK},
		{"admin manages webhooks", []string{model.ScopeAdmin}, false, RequireWebhook, http.StatusOK},
		{"admin grants credits", []string{model.ScopeAdmin}, false, RequireAdmin, http.StatusOK},
		{"no scopes", nil, false, RequireRead, http.StatusForbidden},
		{"no auth context", nil, true, RequireRead, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := tt.require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			if !tt.noAuth {
				req = req.WithContext(auth.ContextWithAuth(req.Context(), &model.AuthContext{
					KeyID:  "key-1",
					UserID: "user-1",
					Scopes: tt.scopes,
				}))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
