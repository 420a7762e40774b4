package model

import (
	"slices"
	"testing"
	"time"
)

func TestHasScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scopes []string
		check  string
		want   bool
	}{
		{"exact", []string{ScopeRead, ScopeWrite}, ScopeRead, true},
		{"missing", []string{ScopeRead}, ScopeWrite, false},
		{"admin implies read", []string{ScopeAdmin}, ScopeRead, true},
		{"admin implies webhook", []string{ScopeAdmin}, ScopeWebhook, true},
		{"write does not imply admin", []string{ScopeWrite}, ScopeAdmin, false},
		{"none", nil, ScopeRead, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			key := &APIKey{Scopes: tc.scopes}
			caller := &AuthContext{Scopes: tc.scopes}
			if got := key.HasScope(tc.check); got != tc.want {
				t.Errorf("APIKey.HasScope(%s) = %v, want %v", tc.check, got, tc.want)
			}
			if got := caller.HasScope(tc.check); got != tc.want {
				t.Errorf("AuthContext.HasScope(%s) = %v, want %v", tc.check, got, tc.want)
			}
		})
	}
}

func TestAPIKey_ToResponseReportsRevocation(t *testing.T) {
	t.Parallel()

	key := &APIKey{ID: "k1", KeyHash: "$argon2id$secret", KeyPrefix: "abc123"}
	if key.ToResponse().Revoked {
		t.Error("fresh key reported revoked")
	}
	now := time.Now()
	key.RevokedAt = &now
	if !key.ToResponse().Revoked {
		t.Error("revoked key not reported")
	}
}

func TestQuotaForTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier      string
		want      Quota
		unlimited bool
	}{
		{TierFree, Quota{PerMinute: 60, Burst: 10}, false},
		{TierPro, Quota{PerMinute: 600, Burst: 50}, false},
		{TierUnlimited, Quota{}, true},
		{"enterprise", Quota{PerMinute: 60, Burst: 10}, false},
		{"", Quota{PerMinute: 60, Burst: 10}, false},
	}

	for _, tc := range tests {
		t.Run(tc.tier, func(t *testing.T) {
			t.Parallel()
			got := QuotaForTier(tc.tier)
			if got != tc.want {
				t.Errorf("QuotaForTier(%q) = %+v, want %+v", tc.tier, got, tc.want)
			}
			if got.Unlimited() != tc.unlimited {
				t.Errorf("Unlimited() = %v, want %v", got.Unlimited(), tc.unlimited)
			}
			ac := &AuthContext{RateLimitTier: tc.tier}
			if ac.Quota() != got {
				t.Errorf("AuthContext.Quota() = %+v, want %+v", ac.Quota(), got)
			}
		})
	}
}

func TestDefaultUserScopes_ExcludeAdmin(t *testing.T) {
	if slices.Contains(DefaultUserScopes, ScopeAdmin) {
		t.Fatal("sign-in keys must not carry admin scope")
	}
	key := &APIKey{Scopes: DefaultUserScopes}
	for _, scope := range []string{ScopeRead, ScopeWrite, ScopeWebhook} {
		if !key.HasScope(scope) {
			t.Errorf("default key should have %s", scope)
		}
	}
}

func TestAPIKey_ToCreateResponse(t *testing.T) {
	key := &APIKey{ID: "key1", KeyPrefix: "a1b2c3", Scopes: []string{ScopeRead}, RateLimitTier: TierPro}

	resp := key.ToCreateResponse("avp_live_a1b2c3_secret")
	if resp.Key != "avp_live_a1b2c3_secret" {
		t.Errorf("Key = %q", resp.Key)
	}
	if resp.ID != "key1" || resp.RateLimitTier != TierPro {
		t.Errorf("unexpected response: %+v", resp)
	}
}
