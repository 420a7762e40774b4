package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/aivideopro/aivideopro/internal/model"
)

// ErrAPIKeyNotFound is returned when no matching active key exists.
var ErrAPIKeyNotFound = errors.New("API key not found")

const selectAPIKey = `SELECT id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, revoked_at, last_used_at, created_at FROM api_keys`

// execer is satisfied by both the pool and a pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if err := insertAPIKey(ctx, r.pool, key); err != nil {
		return fmt.Errorf("create API key: %w", err)
	}
	return nil
}

func insertAPIKey(ctx context.Context, db execer, key *model.APIKey) error {
	_, err := db.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.KeyHash, key.KeyPrefix,
		pq.Array(key.Scopes), key.RateLimitTier, key.Name, key.CreatedAt,
	)
	return err
}

// revokeAPIKey stamps revoked_at and fails with ErrAPIKeyNotFound when the
// key is missing or already revoked.
func revokeAPIKey(ctx context.Context, db execer, id string, at time.Time) error {
	tag, err := db.Exec(ctx, `UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	return scanAPIKey(r.pool.QueryRow(ctx, selectAPIKey+` WHERE id = $1`, id))
}

// GetAPIKeysByPrefix returns the active keys sharing a display prefix. The
// caller verifies the secret against each candidate's hash.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return r.queryAPIKeys(ctx, selectAPIKey+` WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
}

// ListAPIKeysByUserID includes revoked keys, newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return r.queryAPIKeys(ctx, selectAPIKey+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// RevokeAPIKey returns the revocation time.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) (time.Time, error) {
	now := time.Now().UTC()
	if err := revokeAPIKey(ctx, r.pool, id, now); err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("revoke API key: %w", err)
	}
	return now, nil
}

// RotateAPIKey revokes oldID and inserts next in one transaction, so the
// owner is never left with both keys live or with neither.
func (r *Repository) RotateAPIKey(ctx context.Context, oldID string, next *model.APIKey) (time.Time, error) {
	now := time.Now().UTC()
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := revokeAPIKey(ctx, tx, oldID, now); err != nil {
			return err
		}
		return insertAPIKey(ctx, tx, next)
	})
	if err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("rotate API key: %w", err)
	}
	return now, nil
}

// UpdateAPIKeyLastUsed is called off the request path after a successful
// authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch API key: %w", err)
	}
	return nil
}

func (r *Repository) queryAPIKeys(ctx context.Context, query string, args ...any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	err := row.Scan(
		&key.ID, &key.UserID, &key.KeyHash, &key.KeyPrefix,
		pq.Array(&key.Scopes), &key.RateLimitTier, &key.Name,
		&key.RevokedAt, &key.LastUsedAt, &key.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan API key: %w", err)
	}
	return &key, nil
}
