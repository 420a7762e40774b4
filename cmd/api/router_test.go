package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/config"
	"github.com/aivideopro/aivideopro/internal/handler"
	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/middleware"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
	"github.com/aivideopro/aivideopro/internal/service"
	"github.com/aivideopro/aivideopro/internal/webhook"
)

const (
	testBaseURL        = "http://localhost:8080"
	testUserID         = "01HUSER0000000000000000000"
	testJobID          = "01HJOB00000000000000000000"
	testCallbackSecret = "callback-secret"
)

// stubBackend stands in for the services and stores behind the handlers.
type stubBackend struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	reports []model.StatusUpdate
}

func newStubBackend() *stubBackend {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &stubBackend{
		jobs: map[string]*model.Job{
			testJobID: {
				ID:        testJobID,
				UserID:    testUserID,
				VideoURL:  "https://cdn.example.com/in.mp4",
				Prompt:    "trim the intro",
				Status:    model.JobStatusProcessing,
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
	}
}

func (s *stubBackend) SubmitEdit(ctx context.Context, userID string, req model.EditRequest) (*model.EditResponse, error) {
	return &model.EditResponse{JobID: testJobID, Message: service.AcceptedMessage, Status: model.JobStatusProcessing}, nil
}

func (s *stubBackend) GetJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, service.ErrJobNotFound
	}
	return job, nil
}

func (s *stubBackend) ListJobs(ctx context.Context, input service.ListJobsInput) (*service.ListJobsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &service.ListJobsOutput{}
	for _, job := range s.jobs {
		if job.UserID == input.UserID {
			out.Jobs = append(out.Jobs, job)
		}
	}
	return out, nil
}

func (s *stubBackend) GetAccount(ctx context.Context, userID string) (*model.AccountResponse, error) {
	return &model.AccountResponse{UserID: userID, Email: "editor@example.com", Credits: 3}, nil
}

func (s *stubBackend) ListLedger(ctx context.Context, userID string, limit int) ([]*model.CreditEntry, error) {
	return []*model.CreditEntry{{
		ID:        "01HLEDGER00000000000000000",
		UserID:    userID,
		Delta:     3,
		Reason:    model.CreditReasonSignup,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}, nil
}

func (s *stubBackend) ApplyStatusUpdate(ctx context.Context, source string, update model.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[update.JobID]; !ok {
		return false, service.ErrJobNotFound
	}
	s.reports = append(s.reports, update)
	return true, nil
}

func (s *stubBackend) GrantCredits(ctx context.Context, adminKeyID, userID string, req model.CreditGrantRequest) (int, error) {
	return req.Amount, nil
}

func (s *stubBackend) CreateAPIKey(ctx context.Context, key *model.APIKey) error { return nil }

func (s *stubBackend) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	return nil, repository.ErrAPIKeyNotFound
}

func (s *stubBackend) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return nil, nil
}

func (s *stubBackend) RevokeAPIKey(ctx context.Context, id string) (time.Time, error) {
	return time.Now(), nil
}

func (s *stubBackend) RotateAPIKey(ctx context.Context, oldID string, next *model.APIKey) (time.Time, error) {
	return time.Now(), nil
}

func (s *stubBackend) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return nil, nil
}

func (s *stubBackend) UpdateAPIKeyLastUsed(ctx context.Context, id string) error { return nil }

func (s *stubBackend) CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	return nil
}

func (s *stubBackend) GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	return nil, webhook.ErrEndpointNotFound
}

func (s *stubBackend) ListEndpointsByUser(ctx context.Context, userID string) ([]*model.WebhookEndpoint, error) {
	return nil, nil
}

func (s *stubBackend) UpdateEndpointSecret(ctx context.Context, id, secretHash string) error {
	return nil
}

func (s *stubBackend) DeleteEndpoint(ctx context.Context, id string) error { return nil }

func (s *stubBackend) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error) {
	return nil, nil
}

func (s *stubBackend) Ping(ctx context.Context) error { return nil }

func (s *stubBackend) SignIn(ctx context.Context, email string) (*service.SignInResult, error) {
	return nil, service.ErrUserNotFound
}

var (
	_ handler.EditSubmitter  = (*stubBackend)(nil)
	_ handler.JobReader      = (*stubBackend)(nil)
	_ handler.AccountReader  = (*stubBackend)(nil)
	_ handler.APIKeyStore    = (*stubBackend)(nil)
	_ handler.WebhookStore   = (*stubBackend)(nil)
	_ handler.SignInService  = (*stubBackend)(nil)
	_ handler.StatusApplier  = (*stubBackend)(nil)
	_ handler.CreditGranter  = (*stubBackend)(nil)
	_ handler.AdminKeyLister = (*stubBackend)(nil)
	_ handler.HealthChecker  = (*stubBackend)(nil)
	_ middleware.KeyStore    = (*stubBackend)(nil)
)

// stubAuthCache resolves known plaintext keys without touching argon2.
type stubAuthCache struct {
	byHash map[string]*model.AuthContext
}

func (c *stubAuthCache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	return c.byHash[cacheKey], nil
}

func (c *stubAuthCache) SetAuthContext(ctx context.Context, cacheKey string, authCtx *model.AuthContext) error {
	return nil
}

func (c *stubAuthCache) ForgetAPIKey(ctx context.Context, keyID string) error {
	for hash, authCtx := range c.byHash {
		if authCtx.KeyID == keyID {
			delete(c.byHash, hash)
		}
	}
	return nil
}

type testAPI struct {
	router   http.Handler
	backend  *stubBackend
	userKey  string
	readKey  string
	adminKey string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := newStubBackend()
	authCache := &stubAuthCache{byHash: make(map[string]*model.AuthContext)}

	mintKey := func(keyID string, scopes ...string) string {
		k, err := auth.MintKey(auth.EnvTest)
		if err != nil {
			t.Fatalf("mint key: %v", err)
		}
		authCache.byHash[auth.QuickHash(k.String())] = &model.AuthContext{
			KeyID:         keyID,
			KeyPrefix:     k.Prefix,
			UserID:        testUserID,
			Scopes:        scopes,
			RateLimitTier: model.TierFree,
		}
		return k.String()
	}

	cfg := &config.Config{
		AppEnv:             "development",
		MaxRequestBodySize: 1 << 20,
	}

	rt := routes{
		root:     handler.New("test"),
		health:   handler.NewHealthHandler(handler.HealthCheck{Name: "postgres", Checker: backend}, handler.HealthCheck{Name: "redis", Checker: backend}),
		metrics:  handler.NewMetricsHandler(metrics.NewInMemory()),
		edit:     handler.NewEditHandler(backend, logger),
		jobs:     handler.NewJobHandler(backend, logger),
		accounts: handler.NewAccountHandler(backend, logger),
		apiKeys:  handler.NewAPIKeyHandler(logger, backend, authCache),
		webhooks: handler.NewWebhookHandler(backend, logger, webhook.ValidationOptions{}),
		uploads:  handler.NewUploadHandler(nil, logger),
		oauth:    handler.NewOAuthHandler(nil, nil, backend, logger),
		status:   handler.NewStatusHandler(backend, testCallbackSecret, logger),
		admin:    handler.NewAdminHandler(backend, backend, metrics.NewInMemory(), logger, "test"),
	}

	authCfg := middleware.AuthConfig{
		Logger:      logger,
		Keys:        backend,
		Cache:       authCache,
		MinDuration: time.Nanosecond,
	}
	rateLimitCfg := middleware.RateLimitConfig{Logger: logger}

	return &testAPI{
		router:   setupRouter(rt, authCfg, rateLimitCfg, cfg, logger),
		backend:  backend,
		userKey:  mintKey("01HKEYUSER0000000000000000", model.DefaultUserScopes...),
		readKey:  mintKey("01HKEYREAD0000000000000000", model.ScopeRead),
		adminKey: mintKey("01HKEYADMIN000000000000000", model.ScopeAdmin),
	}
}

func (a *testAPI) newRequest(method, path, body, key string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, testBaseURL+path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req
}

func (a *testAPI) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func signedStatusRequest(api *testAPI, jobID, body string) *http.Request {
	req := api.newRequest(http.MethodPost, "/internal/jobs/"+jobID+"/status", body, "")
	ts := time.Now().Unix()
	req.Header.Set(handler.HeaderSignature, webhook.Sign(testCallbackSecret, ts, []byte(body)))
	req.Header.Set(handler.HeaderTimestamp, strconv.FormatInt(ts, 10))
	return req
}

func TestRouter_ScopesAndFallbacks(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		key        func(*testAPI) string
		wantStatus int
	}{
		{"root", http.MethodGet, "/", "", nil, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", nil, http.StatusOK},
		{"unknown path", http.MethodGet, "/nope", "", nil, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/healthz", "", nil, http.StatusMethodNotAllowed},
		{"edit without key", http.MethodPost, "/api/edit", `{"videoUrl":"https://a/b.mp4","prompt":"x"}`, nil, http.StatusUnauthorized},
		{"edit with read key", http.MethodPost, "/api/edit", `{"videoUrl":"https://a/b.mp4","prompt":"x"}`, func(a *testAPI) string { return a.readKey }, http.StatusForbidden},
		{"edit with bad key", http.MethodPost, "/api/edit", `{"videoUrl":"https://a/b.mp4","prompt":"x"}`, func(a *testAPI) string { return "avp_live_nope" }, http.StatusUnauthorized},
		{"jobs with read key", http.MethodGet, "/api/v1/jobs/" + testJobID, "", func(a *testAPI) string { return a.readKey }, http.StatusOK},
		{"uploads with read key", http.MethodPost, "/api/v1/uploads", `{}`, func(a *testAPI) string { return a.readKey }, http.StatusForbidden},
		{"webhooks with read key", http.MethodGet, "/api/v1/webhooks", "", func(a *testAPI) string { return a.readKey }, http.StatusForbidden},
		{"webhooks with user key", http.MethodGet, "/api/v1/webhooks", "", func(a *testAPI) string { return a.userKey }, http.StatusOK},
		{"admin stats with user key", http.MethodGet, "/api/v1/admin/stats", "", func(a *testAPI) string { return a.userKey }, http.StatusForbidden},
		{"admin stats with admin key", http.MethodGet, "/api/v1/admin/stats", "", func(a *testAPI) string { return a.adminKey }, http.StatusOK},
		{"admin grant", http.MethodPost, "/api/v1/admin/users/" + testUserID + "/credits", `{"amount":5,"reason":"promo"}`, func(a *testAPI) string { return a.adminKey }, http.StatusOK},
		{"sign-in disabled", http.MethodGet, "/auth/google/login", "", nil, http.StatusNotFound},
		{"sign-in callback disabled", http.MethodGet, "/auth/google/callback?state=s&code=c", "", nil, http.StatusNotFound},
		{"edit as form", http.MethodPost, "/api/edit", "videoUrl=x", func(a *testAPI) string { return a.userKey }, http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ""
			if tt.key != nil {
				key = tt.key(api)
			}
			req := api.newRequest(tt.method, tt.path, tt.body, key)
			if tt.name == "edit as form" {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}

			rec := api.serve(req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.serve(api.newRequest(http.MethodGet, "/healthz", "", ""))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestRouter_StatusCallback(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	body := `{"status":"completed","result_url":"https://cdn.example.com/out.mp4"}`

	rec := api.serve(signedStatusRequest(api, testJobID, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	api.backend.mu.Lock()
	defer api.backend.mu.Unlock()
	if len(api.backend.reports) != 1 || api.backend.reports[0].JobID != testJobID {
		t.Errorf("reports = %+v", api.backend.reports)
	}

	unsigned := api.newRequest(http.MethodPost, "/internal/jobs/"+testJobID+"/status", body, "")
	if rec := api.serve(unsigned); rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned status = %d, want 401", rec.Code)
	}
}
