package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Verified keys are cached under the QuickHash of the plaintext. A second
// entry maps the key ID back to that hash so a revoked key can be evicted
// without knowing its plaintext.
const (
	authContextPrefix = "auth:ctx:"
	authKeyIndex      = "auth:key:"
	authCacheTTL      = 5 * time.Minute
)

type cachedAuth struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	Tier      string   `json:"tier"`
}

// GetAuthContext returns the cached context for cacheKey, or nil on a miss.
// Undecodable entries are dropped and reported as misses.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authContextPrefix+cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached cachedAuth
	if err := json.Unmarshal(data, &cached); err != nil || cached.KeyID == "" {
		_ = c.client.Del(ctx, authContextPrefix+cacheKey).Err()
		return nil, nil
	}
	return &model.AuthContext{
		KeyID:         cached.KeyID,
		KeyPrefix:     cached.KeyPrefix,
		UserID:        cached.UserID,
		Scopes:        cached.Scopes,
		RateLimitTier: cached.Tier,
	}, nil
}

// SetAuthContext caches a verified key for authCacheTTL.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, authCtx *model.AuthContext) error {
	data, err := json.Marshal(cachedAuth{
		KeyID:     authCtx.KeyID,
		KeyPrefix: authCtx.KeyPrefix,
		UserID:    authCtx.UserID,
		Scopes:    authCtx.Scopes,
		Tier:      authCtx.RateLimitTier,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, authContextPrefix+cacheKey, data, authCacheTTL)
	pipe.Set(ctx, authKeyIndex+authCtx.KeyID, cacheKey, authCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set auth context: %w", err)
	}
	return nil
}

// ForgetAPIKey evicts the cached context of a revoked key so the next
// request with it is checked against the database.
func (c *Cache) ForgetAPIKey(ctx context.Context, keyID string) error {
	cacheKey, err := c.client.GetDel(ctx, authKeyIndex+keyID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("forget api key: %w", err)
	}
	if err := c.client.Del(ctx, authContextPrefix+cacheKey).Err(); err != nil {
		return fmt.Errorf("forget api key: %w", err)
	}
	return nil
}
