package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/aivideopro/aivideopro/internal/model"
)

// ErrEndpointNotFound covers missing and soft-deleted endpoints.
var ErrEndpointNotFound = errors.New("webhook endpoint not found")

// Repository stores endpoints and their delivery queue. It shares the
// application's pool.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectEndpoint = `SELECT id, user_id, target_url, secret_hash, enabled, event_types,
	name, description, created_at, updated_at, deleted_at
FROM webhook_endpoints`

func (r *Repository) CreateEndpoint(ctx context.Context, ep *model.WebhookEndpoint) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints
			(id, user_id, target_url, secret_hash, enabled, event_types, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ep.ID, ep.UserID, ep.TargetURL, ep.SecretHash, ep.Enabled,
		pq.Array(eventTypeStrings(ep.EventTypes)),
		ep.Name, ep.Description, ep.CreatedAt, ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// GetEndpoint never returns soft-deleted endpoints.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	return scanEndpoint(r.pool.QueryRow(ctx, selectEndpoint+` WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *Repository) ListEndpointsByUser(ctx context.Context, userID string) ([]*model.WebhookEndpoint, error) {
	return r.queryEndpoints(ctx, selectEndpoint+`
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, userID)
}

// ListActiveEndpointsByUserAndEvent returns the endpoints a job event fans
// out to, oldest first.
func (r *Repository) ListActiveEndpointsByUserAndEvent(ctx context.Context, userID string, eventType model.EventType) ([]*model.WebhookEndpoint, error) {
	return r.queryEndpoints(ctx, selectEndpoint+`
		WHERE user_id = $1 AND deleted_at IS NULL AND enabled AND $2 = ANY(event_types)
		ORDER BY created_at`, userID, string(eventType))
}

func (r *Repository) UpdateEndpointSecret(ctx context.Context, id, secretHash string) error {
	return r.touchEndpoint(ctx, "update endpoint secret",
		`UPDATE webhook_endpoints SET secret_hash = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, secretHash)
}

// DeleteEndpoint soft-deletes. Pending deliveries stop being claimed and
// the worker exhausts any already in flight.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	return r.touchEndpoint(ctx, "delete webhook endpoint",
		`UPDATE webhook_endpoints SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id)
}

func (r *Repository) touchEndpoint(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

func (r *Repository) queryEndpoints(ctx context.Context, sql string, args ...any) ([]*model.WebhookEndpoint, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook endpoints: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.WebhookEndpoint, error) {
		return scanEndpoint(row)
	})
}

func scanEndpoint(row pgx.Row) (*model.WebhookEndpoint, error) {
	var (
		ep    model.WebhookEndpoint
		types []string
	)
	err := row.Scan(
		&ep.ID, &ep.UserID, &ep.TargetURL, &ep.SecretHash, &ep.Enabled,
		pq.Array(&types), &ep.Name, &ep.Description,
		&ep.CreatedAt, &ep.UpdatedAt, &ep.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan webhook endpoint: %w", err)
	}
	ep.EventTypes = make([]model.EventType, len(types))
	for i, t := range types {
		ep.EventTypes[i] = model.EventType(t)
	}
	return &ep, nil
}

func eventTypeStrings(types []model.EventType) []string {
	out := make([]string, len(types))
	for i, et := range types {
		out[i] = string(et)
	}
	return out
}
