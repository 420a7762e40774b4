package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const readyTimeout = 5 * time.Second

// HealthChecker is anything /readyz can ping.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheck names one dependency probed by /readyz. A nil Checker is
// reported as "not configured" and does not fail readiness.
type HealthCheck struct {
	Name    string
	Checker HealthChecker
}

type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz only proves the process serves HTTP.
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency at once and answers 503 if any configured
// one fails.
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	results := make([]string, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		if c.Checker == nil {
			results[i] = "not configured"
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = "ok"
			if err := c.Checker.Ping(ctx); err != nil {
				results[i] = "error: " + err.Error()
			}
		}()
	}
	wg.Wait()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for i, c := range h.checks {
		resp.Checks[c.Name] = results[i]
		if c.Checker != nil && results[i] != "ok" {
			resp.Status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}
