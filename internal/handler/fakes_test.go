package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
)

const testUserID = "01HUSER0000000000000000000"

func testAuth(scopes ...string) *model.AuthContext {
	if len(scopes) == 0 {
		scopes = model.DefaultUserScopes
	}
	return &model.AuthContext{
		KeyID:         "01HKEY00000000000000000000",
		KeyPrefix:     "abc123",
		UserID:        testUserID,
		Scopes:        scopes,
		RateLimitTier: model.TierFree,
	}
}

// newRequest builds a request carrying authCtx (when non-nil) and chi URL
// params given as name, value pairs.
func newRequest(method, target, body string, authCtx *model.AuthContext, params ...string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx := req.Context()
	if authCtx != nil {
		ctx = auth.ContextWithAuth(ctx, authCtx)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for i := 0; i+1 < len(params); i += 2 {
			rctx.URLParams.Add(params[i], params[i+1])
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}
