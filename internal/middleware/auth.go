package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
)

// defaultMinAuthDuration is the floor every auth attempt waits out, so a
// cache hit, a database hit and a rejection all take the same time.
const defaultMinAuthDuration = 200 * time.Millisecond

const lastUsedTimeout = 5 * time.Second

// KeyStore looks up API keys by prefix.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches verified keys by QuickHash.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  AuthCache

	// MinDuration overrides the constant-time floor. Zero uses 200ms.
	MinDuration time.Duration
}

// Auth requires an API key on every request. The edit route is called with
// "Authorization: Bearer <key>"; X-API-Key is accepted too. Any failure is
// the same 401 so callers can't probe which keys exist.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	minDuration := cfg.MinDuration
	if minDuration == 0 {
		minDuration = defaultMinAuthDuration
	}
	a := &authenticator{keys: cfg.Keys, cache: cfg.Cache, logger: cfg.Logger}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline := time.Now().Add(minDuration)
			authCtx, cacheHit, reason := a.authenticate(r)
			time.Sleep(time.Until(deadline))

			logger := a.logger.With(
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("ip", r.RemoteAddr),
			)
			if authCtx == nil {
				logger.Warn("authentication failed", slog.String("reason", reason))
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			logger.Debug("authenticated",
				slog.String("user_id", authCtx.UserID),
				slog.String("key_id", authCtx.KeyID),
				slog.Bool("cache_hit", cacheHit),
			)
			noteCaller(r.Context(), authCtx.UserID, authCtx.KeyID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
		})
	}
}

type authenticator struct {
	keys   KeyStore
	cache  AuthCache
	logger *slog.Logger
}

// authenticate resolves the request's key. On failure it returns a nil
// context and the reason to log.
func (a *authenticator) authenticate(r *http.Request) (*model.AuthContext, bool, string) {
	ctx := r.Context()

	key := extractAPIKey(r)
	if key == "" {
		return nil, false, "missing_key"
	}
	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, false, "invalid_format"
	}

	cacheKey := auth.QuickHash(key)
	if cached, _ := a.cache.GetAuthContext(ctx, cacheKey); cached != nil {
		return cached, true, ""
	}

	candidates, err := a.keys.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		a.logger.Error("key lookup failed",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, false, "lookup_error"
	}

	// Prefixes can collide; the hash decides.
	var matched *model.APIKey
	for _, k := range candidates {
		if ok, err := auth.VerifyKey(key, k.KeyHash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, false, "invalid_key"
	}

	authCtx := &model.AuthContext{
		KeyID:         matched.ID,
		KeyPrefix:     matched.KeyPrefix,
		UserID:        matched.UserID,
		Scopes:        matched.Scopes,
		RateLimitTier: matched.RateLimitTier,
	}
	_ = a.cache.SetAuthContext(ctx, cacheKey, authCtx)

	go func(ctx context.Context, keyID string) {
		ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
		defer cancel()
		_ = a.keys.UpdateAPIKeyLastUsed(ctx, keyID)
	}(context.WithoutCancel(ctx), matched.ID)

	return authCtx, false, ""
}

// extractAPIKey reads "Authorization: Bearer <key>", then X-API-Key.
func extractAPIKey(r *http.Request) string {
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
