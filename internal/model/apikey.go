package model

import (
	"slices"
	"time"
)

const (
	ScopeRead    = "read"
	ScopeWrite   = "write"
	ScopeWebhook = "webhook"
	ScopeAdmin   = "admin"
)

var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeWebhook, ScopeAdmin}

// DefaultUserScopes are granted to keys minted at sign-in. Admin is never
// granted implicitly.
var DefaultUserScopes = []string{ScopeRead, ScopeWrite, ScopeWebhook}

// Rate limit tiers. A key's tier is fixed when it is minted.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// Quota is a token bucket budget: PerMinute refill and Burst capacity.
// A zero PerMinute means the tier is not limited.
type Quota struct {
	PerMinute int
	Burst     int
}

func (q Quota) Unlimited() bool { return q.PerMinute <= 0 }

var tierQuotas = map[string]Quota{
	TierFree:      {PerMinute: 60, Burst: 10},
	TierPro:       {PerMinute: 600, Burst: 50},
	TierUnlimited: {},
}

// QuotaForTier falls back to the free quota for unknown tiers.
func QuotaForTier(tier string) Quota {
	if q, ok := tierQuotas[tier]; ok {
		return q
	}
	return tierQuotas[TierFree]
}

// APIKey is a stored key. KeyHash is an encoded Argon2id hash; the
// plaintext is never persisted.
type APIKey struct {
	ID            string
	UserID        string
	KeyHash       string
	KeyPrefix     string
	Scopes        []string
	RateLimitTier string
	Name          string
	RevokedAt     *time.Time
	LastUsedAt    *time.Time
	CreatedAt     time.Time
}

func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope reports whether the key carries scope. Admin implies every scope.
func (k *APIKey) HasScope(scope string) bool {
	return scopesAllow(k.Scopes, scope)
}

func scopesAllow(scopes []string, scope string) bool {
	return slices.Contains(scopes, ScopeAdmin) || slices.Contains(scopes, scope)
}

// AuthContext is what the auth middleware stores on the request context.
type AuthContext struct {
	KeyID         string
	KeyPrefix     string
	UserID        string
	Scopes        []string
	RateLimitTier string
}

// Quota is the rate limit budget of the calling key.
func (a *AuthContext) Quota() Quota {
	return QuotaForTier(a.RateLimitTier)
}

func (a *AuthContext) HasScope(scope string) bool {
	return scopesAllow(a.Scopes, scope)
}

// APIKeyCreateRequest is the body of POST /v1/keys.
type APIKeyCreateRequest struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes"`
}

type APIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Revoked       bool       `json:"revoked"`
}

// ToResponse drops the hash.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		KeyPrefix:     k.KeyPrefix,
		Scopes:        k.Scopes,
		RateLimitTier: k.RateLimitTier,
		CreatedAt:     k.CreatedAt,
		LastUsedAt:    k.LastUsedAt,
		Revoked:       k.IsRevoked(),
	}
}

// APIKeyCreateResponse adds the plaintext key, shown on creation only.
type APIKeyCreateResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// APIKeyRotateResponse reports the revoked key alongside its replacement.
type APIKeyRotateResponse struct {
	OldKeyID        string               `json:"old_key_id"`
	OldKeyRevokedAt time.Time            `json:"old_key_revoked_at"`
	NewKey          APIKeyCreateResponse `json:"new_key"`
}

// ToCreateResponse pairs a stored key with its one-time plaintext.
func (k *APIKey) ToCreateResponse(plaintext string) APIKeyCreateResponse {
	return APIKeyCreateResponse{APIKeyResponse: k.ToResponse(), Key: plaintext}
}
