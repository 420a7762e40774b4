// Package dto holds request and response shapes that exist only at the
// HTTP edge.
package dto

import (
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// LedgerResponse is returned by GET /api/v1/me/credits/ledger.
type LedgerResponse struct {
	Entries []*model.CreditEntry `json:"entries"`
}

// CreditGrantResponse is returned after an admin grant.
type CreditGrantResponse struct {
	UserID  string `json:"user_id"`
	Granted int    `json:"granted"`
	Credits int    `json:"credits"`
}

// SignInResponse carries the freshly minted key. It is the only time the
// plaintext key is shown.
type SignInResponse struct {
	UserID  string                     `json:"user_id"`
	Email   string                     `json:"email"`
	Credits int                        `json:"credits"`
	Created bool                       `json:"created"`
	APIKey  model.APIKeyCreateResponse `json:"api_key"`
}

// StatusReportResponse acknowledges a backend status report.
type StatusReportResponse struct {
	JobID   string `json:"job_id"`
	Applied bool   `json:"applied"`
}

// WebhookListResponse is returned by GET /api/v1/webhooks.
type WebhookListResponse struct {
	Webhooks []model.WebhookEndpointResponse `json:"webhooks"`
}

// WebhookDeliveriesResponse is returned by GET /api/v1/webhooks/{id}/deliveries.
type WebhookDeliveriesResponse struct {
	Deliveries []model.WebhookDeliveryResponse `json:"deliveries"`
}

// WebhookSecretResponse carries a rotated signing secret.
type WebhookSecretResponse struct {
	Secret string `json:"secret"`
}

// AdminKeyListResponse is returned by GET /api/v1/admin/api-keys.
type AdminKeyListResponse struct {
	UserID string                 `json:"user_id"`
	Keys   []model.APIKeyResponse `json:"keys"`
	Total  int                    `json:"total"`
}

// StatsResponse is returned by GET /api/v1/admin/stats. Counters are
// process-local and reset on restart.
type StatsResponse struct {
	Service           string            `json:"service"`
	Version           string            `json:"version"`
	StartedAt         time.Time         `json:"started_at"`
	Uptime            string            `json:"uptime"`
	JobsSubmitted     map[string]uint64 `json:"jobs_submitted"`
	JobsFinished      map[string]uint64 `json:"jobs_finished"`
	JobsTimedOut      uint64            `json:"jobs_timed_out"`
	WebhookQueueDepth int64             `json:"webhook_queue_depth"`
}
