package model

import (
	"slices"
	"time"
)

// EventType names a job lifecycle notification.
type EventType string

const (
	EventTypeJobCompleted EventType = "job.completed"
	EventTypeJobFailed    EventType = "job.failed"
)

// ValidEventTypes is also the default subscription for new endpoints.
var ValidEventTypes = []EventType{EventTypeJobCompleted, EventTypeJobFailed}

// EventTypeForStatus maps a terminal job status to its event type.
func EventTypeForStatus(s JobStatus) (EventType, bool) {
	switch s {
	case JobStatusCompleted:
		return EventTypeJobCompleted, true
	case JobStatusFailed:
		return EventTypeJobFailed, true
	}
	return "", false
}

func IsValidEventType(et EventType) bool {
	return slices.Contains(ValidEventTypes, et)
}

// DeliveryStatus tracks one event's progress toward one endpoint.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// Done reports whether the worker will never pick the delivery up again.
func (s DeliveryStatus) Done() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusExhausted
}

// WebhookEndpoint is a user-registered URL that receives job events.
// The signing secret is stored encrypted; SecretHash never leaves the server.
type WebhookEndpoint struct {
	ID          string
	UserID      string
	TargetURL   string
	SecretHash  string
	Enabled     bool
	EventTypes  []EventType
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (e *WebhookEndpoint) IsDeleted() bool {
	return e.DeletedAt != nil
}

// IsActive reports whether new deliveries should be attempted.
func (e *WebhookEndpoint) IsActive() bool {
	return e.Enabled && e.DeletedAt == nil
}

// WebhookDelivery is one queued POST of an event to an endpoint. The db
// tags match the webhook_deliveries columns.
type WebhookDelivery struct {
	ID             string         `db:"id"`
	EndpointID     string         `db:"endpoint_id"`
	EventID        string         `db:"event_id"`
	EventType      EventType      `db:"event_type"`
	PayloadJSON    string         `db:"payload_json"`
	Status         DeliveryStatus `db:"status"`
	AttemptCount   int            `db:"attempt_count"`
	MaxAttempts    int            `db:"max_attempts"`
	NextRetryAt    time.Time      `db:"next_retry_at"`
	LastAttemptAt  *time.Time     `db:"last_attempt_at"`
	LastHTTPStatus *int           `db:"last_http_status"`
	LastError      string         `db:"last_error"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// IsTerminal mirrors Status.Done for callers holding a delivery.
func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status.Done()
}

// WebhookEndpointCreateRequest is the body of POST /v1/webhooks.
// An empty EventTypes subscribes to every job event.
type WebhookEndpointCreateRequest struct {
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	TargetURL   string      `json:"target_url"`
	EventTypes  []EventType `json:"event_types,omitempty"`
}

type WebhookEndpointResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	TargetURL   string      `json:"target_url"`
	Enabled     bool        `json:"enabled"`
	EventTypes  []EventType `json:"event_types"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (e *WebhookEndpoint) ToResponse() WebhookEndpointResponse {
	return WebhookEndpointResponse{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		TargetURL:   e.TargetURL,
		Enabled:     e.Enabled,
		EventTypes:  e.EventTypes,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// WebhookEndpointCreateResponse carries the plaintext signing secret.
// It is returned exactly once, on creation.
type WebhookEndpointCreateResponse struct {
	WebhookEndpointResponse
	Secret string `json:"secret"`
}

type WebhookDeliveryResponse struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastHTTPStatus *int           `json:"last_http_status,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ToResponse omits the payload body. NextRetryAt is only shown while
// another attempt is still scheduled.
func (d *WebhookDelivery) ToResponse() WebhookDeliveryResponse {
	var next *time.Time
	if !d.Status.Done() && !d.NextRetryAt.IsZero() {
		t := d.NextRetryAt
		next = &t
	}
	return WebhookDeliveryResponse{
		ID:             d.ID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Status:         d.Status,
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		NextRetryAt:    next,
		LastAttemptAt:  d.LastAttemptAt,
		LastHTTPStatus: d.LastHTTPStatus,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
	}
}

// JobEvent is the JSON body POSTed to endpoints.
type JobEvent struct {
	EventType EventType    `json:"event_type"`
	EventID   string       `json:"event_id"`
	Timestamp time.Time    `json:"timestamp"`
	Data      JobEventData `json:"data"`
}

type JobEventData struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}
