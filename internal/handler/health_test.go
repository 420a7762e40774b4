package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got %s", response.Status)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all healthy",
			checks: []HealthCheck{
				{Name: "postgres", Checker: &mockHealthChecker{}},
				{Name: "redis", Checker: &mockHealthChecker{}},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "database down",
			checks: []HealthCheck{
				{Name: "postgres", Checker: &mockHealthChecker{err: errors.New("connection refused")}},
				{Name: "redis", Checker: &mockHealthChecker{}},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"postgres": "error: connection refused", "redis": "ok"},
		},
		{
			name: "redis down",
			checks: []HealthCheck{
				{Name: "postgres", Checker: &mockHealthChecker{}},
				{Name: "redis", Checker: &mockHealthChecker{err: errors.New("timeout")}},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"postgres": "ok", "redis": "error: timeout"},
		},
		{
			name: "unconfigured dependency does not fail readiness",
			checks: []HealthCheck{
				{Name: "postgres", Checker: &mockHealthChecker{}},
				{Name: "storage", Checker: nil},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "storage": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(tt.checks...)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}

			var response HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status field = %q, want %q", response.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := response.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}
