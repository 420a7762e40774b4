package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Outbox is where a published event is queued; *Repository implements it.
type Outbox interface {
	ListActiveEndpointsByUserAndEvent(ctx context.Context, userID string, eventType model.EventType) ([]*model.WebhookEndpoint, error)
	CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error
}

// Publisher turns finished jobs into queued deliveries. The worker does the
// actual POSTs.
type Publisher struct {
	outbox Outbox
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(outbox Outbox, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: outbox,
		logger: logger.With("component", "webhook.publisher"),
		now:    time.Now,
	}
}

// EventID is stable per job and terminal status, so publishing the same
// outcome twice queues nothing new.
func EventID(job *model.Job) string {
	return "evt_" + job.ID + "_" + string(job.Status)
}

// BuildJobPayload renders the body POSTed to endpoints.
func BuildJobPayload(job *model.Job, eventType model.EventType, at time.Time) ([]byte, error) {
	return json.Marshal(model.JobEvent{
		EventType: eventType,
		EventID:   EventID(job),
		Timestamp: at.UTC(),
		Data: model.JobEventData{
			JobID:     job.ID,
			Status:    job.Status,
			ResultURL: job.ResultURL,
			Error:     job.Error,
		},
	})
}

// PublishJobEvent queues one delivery per subscribed endpoint of the job's
// owner. Non-terminal jobs publish nothing. Every endpoint is attempted;
// the returned error joins the ones that could not be queued.
func (p *Publisher) PublishJobEvent(ctx context.Context, job *model.Job) error {
	eventType, ok := model.EventTypeForStatus(job.Status)
	if !ok {
		return nil
	}

	endpoints, err := p.outbox.ListActiveEndpointsByUserAndEvent(ctx, job.UserID, eventType)
	if err != nil {
		return fmt.Errorf("list subscribed endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	now := p.now()
	body, err := BuildJobPayload(job, eventType, now)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	var errs []error
	for _, ep := range endpoints {
		d := newDelivery(ep.ID, EventID(job), eventType, body, now)
		if err := p.outbox.CreateDelivery(ctx, d); err != nil {
			p.logger.Warn("queue delivery failed", "endpoint_id", ep.ID, "event_id", d.EventID, "error", err)
			errs = append(errs, fmt.Errorf("endpoint %s: %w", ep.ID, err))
			continue
		}
		p.logger.Debug("delivery queued", "delivery_id", d.ID, "endpoint_id", ep.ID, "event_id", d.EventID)
	}
	return errors.Join(errs...)
}

// newDelivery is due immediately.
func newDelivery(endpointID, eventID string, eventType model.EventType, body []byte, now time.Time) *model.WebhookDelivery {
	return &model.WebhookDelivery{
		ID:          ulid.Make().String(),
		EndpointID:  endpointID,
		EventID:     eventID,
		EventType:   eventType,
		PayloadJSON: string(body),
		Status:      model.DeliveryStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
