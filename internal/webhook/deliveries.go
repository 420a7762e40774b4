package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aivideopro/aivideopro/internal/model"
)

// claimLease is how long a claimed delivery stays invisible to other workers.
const claimLease = 2 * time.Minute

// maxErrorLen bounds last_error so a chatty endpoint cannot bloat rows.
const maxErrorLen = 500

const deliveryColumns = `id, endpoint_id, event_id, event_type, payload_json, status,
	attempt_count, max_attempts, next_retry_at, last_attempt_at, last_http_status,
	last_error, created_at, updated_at`

// CreateDelivery enqueues an event for one endpoint. A second insert for the
// same (event_id, endpoint_id) is a no-op, which makes publishing idempotent.
func (r *Repository) CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries
			(id, endpoint_id, event_id, event_type, payload_json, status,
			 attempt_count, max_attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING`,
		d.ID, d.EndpointID, d.EventID, string(d.EventType), d.PayloadJSON, string(d.Status),
		d.AttemptCount, d.MaxAttempts, d.NextRetryAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// ClaimPendingDeliveries leases up to limit due deliveries by pushing
// next_retry_at past the lease. SKIP LOCKED keeps concurrent workers from
// claiming the same row; a crashed worker's lease simply expires.
func (r *Repository) ClaimPendingDeliveries(ctx context.Context, limit int) ([]*model.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE webhook_deliveries
		SET next_retry_at = now() + $1::interval
		WHERE id IN (
			SELECT d.id
			FROM webhook_deliveries d
			JOIN webhook_endpoints e ON e.id = d.endpoint_id
			WHERE d.status IN ('pending', 'failed')
			  AND d.next_retry_at <= now()
			  AND e.deleted_at IS NULL
			  AND e.enabled
			ORDER BY d.next_retry_at
			LIMIT $2
			FOR UPDATE OF d SKIP LOCKED
		)
		RETURNING `+deliveryColumns,
		claimLease, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending deliveries: %w", err)
	}
	return collectDeliveries(rows)
}

func (r *Repository) UpdateDeliverySuccess(ctx context.Context, id string, httpStatus int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'success', attempt_count = attempt_count + 1,
		    last_attempt_at = now(), last_http_status = $2, last_error = '', updated_at = now()
		WHERE id = $1`, id, httpStatus)
	if err != nil {
		return fmt.Errorf("record delivery success: %w", err)
	}
	return nil
}

// UpdateDeliveryFailure counts the attempt and either reschedules the
// delivery at nextRetryAt or marks it exhausted.
func (r *Repository) UpdateDeliveryFailure(ctx context.Context, id string, httpStatus *int, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, attempt_count = attempt_count + 1,
		    last_attempt_at = now(), last_http_status = $3, last_error = $4,
		    next_retry_at = $5, updated_at = now()
		WHERE id = $1`, id, string(status), httpStatus, errMsg, nextRetryAt)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}

// ListDeliveriesByEndpoint returns the newest deliveries first.
func (r *Repository) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	return collectDeliveries(rows)
}

// GetQueueDepth counts deliveries that still have attempts scheduled.
func (r *Repository) GetQueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM webhook_deliveries WHERE status IN ('pending', 'failed')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return n, nil
}

func collectDeliveries(rows pgx.Rows) ([]*model.WebhookDelivery, error) {
	deliveries, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.WebhookDelivery])
	if err != nil {
		return nil, fmt.Errorf("scan deliveries: %w", err)
	}
	return deliveries, nil
}
